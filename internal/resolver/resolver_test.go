package resolver

import "testing"

func TestStaticResolve(t *testing.T) {
	r := NewStatic()
	r.Set("media-host", "10.0.0.5:40001")
	got, ok := r.Resolve("media-host")
	if !ok || got != "10.0.0.5:40001" {
		t.Fatalf("unexpected resolve result: %q ok=%v", got, ok)
	}
	if _, ok := r.Resolve("unknown"); ok {
		t.Fatalf("expected unknown name to miss")
	}
}
