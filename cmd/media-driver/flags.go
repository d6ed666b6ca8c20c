package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"
)

// version is injected at build time with -ldflags "-X main.version=...". Defaults to dev.
var version = "dev"

// threadingMode controls how the sender/receiver/conductor agents are
// scheduled relative to each other.
type threadingMode string

const (
	threadingDedicated     threadingMode = "DEDICATED"
	threadingShared        threadingMode = "SHARED"
	threadingSharedNetwork threadingMode = "SHARED_NETWORK"
	threadingInvoker       threadingMode = "INVOKER"
)

// cliConfig holds user supplied flag values prior to translation into the
// driver's runtime config, so main.go can validate and map.
type cliConfig struct {
	aeronDir           string
	threadingMode      threadingMode
	driverTimeout      time.Duration
	clientLivenessTimeout time.Duration
	logLevel           string
	metricsAddr        string
	printConfiguration bool
	showVersion        bool
}

func parseFlags(args []string) (*cliConfig, error) {
	fs := flag.NewFlagSet("media-driver", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	cfg := &cliConfig{}
	var threadingModeStr string

	fs.StringVar(&cfg.aeronDir, "aeron.dir", envOr("MEDIA_DRIVER_DIR", defaultAeronDir()), "Directory for cnc.dat, log-buffer, and counters files")
	fs.StringVar(&threadingModeStr, "threading-mode", envOr("MEDIA_DRIVER_THREADING_MODE", string(threadingDedicated)), "Agent scheduling mode: DEDICATED|SHARED|SHARED_NETWORK|INVOKER")
	fs.DurationVar(&cfg.driverTimeout, "driver.timeout", envOrDuration("MEDIA_DRIVER_TIMEOUT", 10*time.Second), "Driver timeout; validated and shown by -print.configuration, not read by any agent")
	fs.DurationVar(&cfg.clientLivenessTimeout, "client.liveness.timeout", envOrDuration("MEDIA_DRIVER_CLIENT_LIVENESS_TIMEOUT", 10*time.Second), "Time since last client keepalive before its resources are reclaimed")
	fs.StringVar(&cfg.logLevel, "log-level", envOr("MEDIA_DRIVER_LOG_LEVEL", "info"), "Log level: debug|info|warn|error")
	fs.StringVar(&cfg.metricsAddr, "metrics.addr", envOr("MEDIA_DRIVER_METRICS_ADDR", ""), "Address to serve Prometheus /metrics on (empty disables)")
	fs.BoolVar(&cfg.printConfiguration, "print.configuration", false, "Print the resolved configuration and exit without starting the driver")
	fs.BoolVar(&cfg.showVersion, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.threadingMode = threadingMode(strings.ToUpper(threadingModeStr))
	switch cfg.threadingMode {
	case threadingDedicated, threadingShared, threadingSharedNetwork, threadingInvoker:
	default:
		return nil, fmt.Errorf("invalid threading-mode %q", threadingModeStr)
	}

	switch cfg.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid log-level %q", cfg.logLevel)
	}

	if cfg.aeronDir == "" {
		return nil, errors.New("aeron.dir must not be empty")
	}
	if cfg.driverTimeout <= 0 {
		return nil, errors.New("driver.timeout must be positive")
	}

	return cfg, nil
}

// envOr returns the environment variable's value if set, else def. Mirrors
// logger.detectLevel's flag->env->default precedence, generalized to every
// flag rather than just log level.
func envOr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func envOrDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func defaultAeronDir() string {
	return fmt.Sprintf("%s/media-driver-%d", os.TempDir(), os.Getuid())
}

func (c *cliConfig) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "aeron.dir=%s\n", c.aeronDir)
	fmt.Fprintf(&b, "threading-mode=%s\n", c.threadingMode)
	fmt.Fprintf(&b, "driver.timeout=%s\n", c.driverTimeout)
	fmt.Fprintf(&b, "client.liveness.timeout=%s\n", c.clientLivenessTimeout)
	fmt.Fprintf(&b, "log-level=%s\n", c.logLevel)
	fmt.Fprintf(&b, "metrics.addr=%s\n", c.metricsAddr)
	return b.String()
}
