package health

import (
	"testing"
	"time"
)

func TestNoEvaluationBelowTenSamples(t *testing.T) {
	c := New(100, 50*time.Millisecond, 10, 5*time.Second)
	for i := 0; i < 9; i++ {
		c.Record("demo", 10*time.Millisecond, false)
	}
	_, ok := c.Evaluate("demo", time.Now(), nil)
	if ok {
		t.Fatalf("expected no evaluation with < 10 samples")
	}
	if c.Weight("demo") != 100 {
		t.Fatalf("expected unchanged weight, got %v", c.Weight("demo"))
	}
}

func TestWeightDegradesOnHighTimeoutRate(t *testing.T) {
	c := New(100, 50*time.Millisecond, 10, 5*time.Second)
	for i := 0; i < 10; i++ {
		c.Record("demo", 80*time.Millisecond, false)
	}

	var applied float64
	d, ok := c.Evaluate("demo", time.Now(), func(k string, w float64) error {
		applied = w
		return nil
	})
	if !ok {
		t.Fatalf("expected evaluation to run")
	}
	if !d.WeightChanged || d.NewWeight != 50 {
		t.Fatalf("expected weight to drop to 50, got %+v", d)
	}
	if applied != 50 {
		t.Fatalf("expected registry update with weight 50, got %v", applied)
	}
	if c.Weight("demo") != 50 {
		t.Fatalf("expected committed weight 50, got %v", c.Weight("demo"))
	}
}

func TestWeightDoesNotCommitOnUpdateFailure(t *testing.T) {
	c := New(100, 50*time.Millisecond, 10, 5*time.Second)
	for i := 0; i < 10; i++ {
		c.Record("demo", 80*time.Millisecond, false)
	}

	_, ok := c.Evaluate("demo", time.Now(), func(k string, w float64) error {
		return errBoom
	})
	if !ok {
		t.Fatalf("expected evaluation to run")
	}
	if c.Weight("demo") != 100 {
		t.Fatalf("expected weight unchanged after failed update, got %v", c.Weight("demo"))
	}
}

func TestWeightRecoversTowardBase(t *testing.T) {
	c := New(100, 50*time.Millisecond, 10, 5*time.Second)
	for i := 0; i < 10; i++ {
		c.Record("demo", 80*time.Millisecond, false)
	}
	now := time.Now()
	c.Evaluate("demo", now, func(k string, w float64) error { return nil })
	if c.Weight("demo") != 50 {
		t.Fatalf("expected degraded weight 50, got %v", c.Weight("demo"))
	}

	for i := 0; i < 10; i++ {
		c.Record("demo", 10*time.Millisecond, false)
	}
	later := now.Add(6 * time.Second)
	d, ok := c.Evaluate("demo", later, func(k string, w float64) error { return nil })
	if !ok {
		t.Fatalf("expected evaluation to run")
	}
	if !d.WeightChanged || d.NewWeight <= 50 {
		t.Fatalf("expected weight to increase above 50, got %+v", d)
	}
}

func TestGateClosesAtErrorRateThreshold(t *testing.T) {
	c := New(100, 50*time.Millisecond, 10, 5*time.Second)
	for i := 0; i < 5; i++ {
		c.Record("demo", 10*time.Millisecond, true)
	}
	for i := 0; i < 5; i++ {
		c.Record("demo", 10*time.Millisecond, false)
	}

	d, ok := c.Evaluate("demo", time.Now(), nil)
	if !ok {
		t.Fatalf("expected evaluation to run")
	}
	if !d.GateChanged || d.NewGate != GateClosed {
		t.Fatalf("expected gate to close at exactly 0.5 error rate, got %+v", d)
	}
	if c.GateState("demo") != GateClosed {
		t.Fatalf("expected committed gate closed")
	}
}

func TestGateReopensAfterCooldownOnceErrorsSubside(t *testing.T) {
	c := New(100, 50*time.Millisecond, 10, 5*time.Second)
	for i := 0; i < 10; i++ {
		c.Record("demo", 10*time.Millisecond, true)
	}
	now := time.Now()
	c.Evaluate("demo", now, nil)
	if c.GateState("demo") != GateClosed {
		t.Fatalf("expected gate closed after errors")
	}

	for i := 0; i < 10; i++ {
		c.Record("demo", 10*time.Millisecond, false)
	}
	later := now.Add(6 * time.Second)
	d, ok := c.Evaluate("demo", later, nil)
	if !ok {
		t.Fatalf("expected evaluation to run")
	}
	if !d.GateChanged || d.NewGate != GateOpen {
		t.Fatalf("expected gate to reopen, got %+v", d)
	}
}

func TestResetRestoresFreshState(t *testing.T) {
	c := New(100, 50*time.Millisecond, 10, 5*time.Second)
	for i := 0; i < 10; i++ {
		c.Record("demo", 80*time.Millisecond, true)
	}
	c.Evaluate("demo", time.Now(), func(string, float64) error { return nil })

	c.Reset("demo")
	if c.Weight("demo") != 100 {
		t.Fatalf("expected weight reset to W0, got %v", c.Weight("demo"))
	}
	if c.GateState("demo") != GateOpen {
		t.Fatalf("expected gate reset to open")
	}
}

type boomErr struct{}

func (boomErr) Error() string { return "boom" }

var errBoom = boomErr{}
