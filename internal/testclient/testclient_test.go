package testclient

import (
	"context"
	"testing"
	"time"

	"servicehost/internal/health"
	"servicehost/internal/logging"
	"servicehost/internal/middleware"
	"servicehost/internal/registrar"
	"servicehost/internal/samples"
	"servicehost/internal/transport"
)

func startTestHost(t *testing.T) string {
	specs := map[string]registrar.Spec{
		"demo": {Enable: true, ServiceName: "Demo"},
	}
	factories := map[string]registrar.Factory{
		"Demo": func() interface{} { return &samples.Demo{} },
	}
	reg, err := registrar.New(specs, factories)
	if err != nil {
		t.Fatalf("registrar.New: %v", err)
	}

	ctrl := health.New(100, time.Second, 10, 5*time.Second)
	d := transport.NewDispatcher(reg, ctrl, time.Second)
	chain := middleware.Chain(middleware.Recovery(logging.NewNop(), ctrl))(d.AsHandlerFunc())

	s := transport.New(chain, logging.NewNop())
	if err := s.Listen("127.0.0.1:0"); err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go s.Serve(ctx)

	return s.ListenerAddr()
}

func TestCallRoundTripsDemoAdd(t *testing.T) {
	addr := startTestHost(t)

	c, err := Dial(addr, time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	var result string
	if err := c.Call("demo.add", []interface{}{"tom", 18}, &result); err != nil {
		t.Fatalf("call: %v", err)
	}
	if result != "tom is 18 years old" {
		t.Fatalf("got %q", result)
	}
}

func TestCallSurfacesServerError(t *testing.T) {
	addr := startTestHost(t)

	c, err := Dial(addr, time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	err = c.Call("unknown.add", []interface{}{}, nil)
	if err == nil {
		t.Fatalf("expected server error")
	}
}
