// Package channelsuri parses and canonicalizes channel URIs of the form
// "aeron:udp?endpoint=host:port&..." and "aeron:ipc?...", producing the
// deduplication key used to find-or-create a channel endpoint
// ("UDP-<iface-or-control>-<endpoint>") and recognizing "tag=<n>" references
// (IsTagReference parses n; nothing here resolves it against registered
// publications). Modeled on a URL-based
// destination parser (net/url.Parse + scheme validation) generalized from a
// single rtmp:// URL to arbitrary query-key enumeration.
package channelsuri

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	protoerr "github.com/alxayo/mediadriver/internal/errors"
)

// Media names the transport a channel URI addresses.
type Media string

const (
	MediaUDP Media = "udp"
	MediaIPC Media = "ipc"
)

// ChannelURI is a parsed "aeron:<media>?k=v&..." string.
type ChannelURI struct {
	Media  Media
	Params map[string]string
	Raw    string
}

const scheme = "aeron"

// Parse parses raw into a ChannelURI, validating the scheme and media.
func Parse(raw string) (*ChannelURI, error) {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, scheme+":") {
		return nil, protoerr.NewInvalidChannelError("channelsuri.parse", fmt.Sprintf("missing %q scheme: %s", scheme, raw))
	}
	rest := trimmed[len(scheme)+1:]
	mediaPart := rest
	query := ""
	if idx := strings.IndexByte(rest, '?'); idx >= 0 {
		mediaPart = rest[:idx]
		query = rest[idx+1:]
	}
	media := Media(strings.ToLower(mediaPart))
	if media != MediaUDP && media != MediaIPC {
		return nil, protoerr.NewInvalidChannelError("channelsuri.parse", fmt.Sprintf("unsupported media %q", mediaPart))
	}
	values, err := url.ParseQuery(query)
	if err != nil {
		return nil, protoerr.NewInvalidChannelError("channelsuri.parse", fmt.Sprintf("malformed query: %v", err))
	}
	params := make(map[string]string, len(values))
	for k, v := range values {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}
	return &ChannelURI{Media: media, Params: params, Raw: trimmed}, nil
}

// Get returns a query parameter, and whether it was present.
func (c *ChannelURI) Get(key string) (string, bool) {
	v, ok := c.Params[key]
	return v, ok
}

// IsTagReference reports whether the channel is a "aeron:udp?tag=<n>" (or
// ipc) reference that must resolve against an existing registration rather
// than create a new endpoint.
func (c *ChannelURI) IsTagReference() (int64, bool) {
	v, ok := c.Get("tag")
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// CanonicalForm produces the channel-endpoint dedup key:
// "UDP-<iface-or-control>-<endpoint>" for udp, or "IPC" for ipc (all ipc
// channels share one logical endpoint namespace).
func (c *ChannelURI) CanonicalForm() (string, error) {
	if c.Media == MediaIPC {
		return "IPC", nil
	}
	endpoint, hasEndpoint := c.Get("endpoint")
	control, hasControl := c.Get("control")
	iface, _ := c.Get("interface")

	switch {
	case hasControl:
		return fmt.Sprintf("UDP-%s-%s", control, endpoint), nil
	case hasEndpoint && iface != "":
		return fmt.Sprintf("UDP-%s-%s", iface, endpoint), nil
	case hasEndpoint:
		return fmt.Sprintf("UDP--%s", endpoint), nil
	default:
		return "", protoerr.NewInvalidChannelError("channelsuri.canonical_form", "udp channel requires endpoint or control")
	}
}

// String reconstructs a canonical "aeron:media?k=v&..." representation with
// keys sorted, so two URIs specifying the same parameters in different
// order compare equal.
func (c *ChannelURI) String() string {
	keys := make([]string, 0, len(c.Params))
	for k := range c.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(scheme)
	b.WriteByte(':')
	b.WriteString(string(c.Media))
	if len(keys) > 0 {
		b.WriteByte('?')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte('&')
			}
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(c.Params[k])
		}
	}
	return b.String()
}
