package registrar

import "testing"

type addImpl struct{}

func (a *addImpl) Add(x int, y int) (int, error) { return x + y, nil }

func TestNewReflectsEnabledSpecsOnly(t *testing.T) {
	specs := map[string]Spec{
		"demo":     {Enable: true, ServiceName: "Add"},
		"disabled": {Enable: false, ServiceName: "Add"},
	}
	factories := map[string]Factory{
		"Add": func() interface{} { return &addImpl{} },
	}

	r, err := New(specs, factories)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := r.Entry("demo"); !ok {
		t.Fatalf("expected demo to be registered")
	}
	if _, ok := r.Entry("disabled"); ok {
		t.Fatalf("expected disabled identifier to be skipped")
	}
}

func TestNewFailsFatallyOnUnresolvableImplementation(t *testing.T) {
	specs := map[string]Spec{
		"demo": {Enable: true, ServiceName: "Missing"},
	}
	_, err := New(specs, map[string]Factory{})
	if err == nil {
		t.Fatalf("expected error for unresolvable implementation")
	}
}
