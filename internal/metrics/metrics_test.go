package metrics

import "testing"

func TestNewTestRegistryRegistersCollectors(t *testing.T) {
	r, reg := NewTestRegistry()
	r.AgentWorkCount.WithLabelValues("conductor").Inc()
	r.ErrorLogSize.Set(3)
	r.FramesSent.WithLabelValues("DATA").Inc()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) == 0 {
		t.Fatalf("expected registered metric families")
	}
}
