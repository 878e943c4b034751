package runtime

import "testing"

type stubHandler struct{ jobType string }

func (h stubHandler) Type() string      { return h.jobType }
func (h stubHandler) Run(*Context) error { return nil }

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(stubHandler{jobType: "cluster_label"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	h, ok := r.Get("cluster_label")
	if !ok || h.Type() != "cluster_label" {
		t.Fatalf("Get: ok=%v h=%v", ok, h)
	}
	if _, ok := r.Get("brand_extract"); ok {
		t.Fatalf("unregistered type must not resolve")
	}
}

func TestRegistryRejectsDuplicate(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(stubHandler{jobType: "cluster_label"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(stubHandler{jobType: "cluster_label"}); err == nil {
		t.Fatalf("duplicate registration must fail")
	}
}

func TestRegistryRejectsInvalidHandlers(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(nil); err == nil {
		t.Fatalf("nil handler must fail")
	}
	if err := r.Register(stubHandler{}); err == nil {
		t.Fatalf("empty type must fail")
	}
}
