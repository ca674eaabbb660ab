package heartbeat

import (
	"context"
	"testing"
	"time"

	"servicehost/internal/health"
	"servicehost/internal/logging"
)

type fakeSender struct {
	calls []string
}

func (f *fakeSender) SendBeat(ctx context.Context, safeName, ip string, port int, namespace string, metadata map[string]string, ephemeral bool, weight float64, interval time.Duration) error {
	f.calls = append(f.calls, safeName)
	return nil
}

func TestTickSkipsClosedGate(t *testing.T) {
	ctrl := health.New(100, 50*time.Millisecond, 10, 5*time.Second)
	for i := 0; i < 10; i++ {
		ctrl.Record("demo", 10*time.Millisecond, true)
	}
	ctrl.Evaluate("demo", time.Now(), nil) // closes the gate

	sender := &fakeSender{}
	sched := New([]Target{{Identifier: "demo", SafeName: "SERVICE@@demo"}}, sender, ctrl, time.Second, logging.NewNop())
	sched.Tick(context.Background())

	if len(sender.calls) != 0 {
		t.Fatalf("expected no heartbeat while gate closed, got %v", sender.calls)
	}
}

func TestTickSendsForOpenGate(t *testing.T) {
	ctrl := health.New(100, 50*time.Millisecond, 10, 5*time.Second)
	sender := &fakeSender{}
	sched := New([]Target{{Identifier: "demo", SafeName: "SERVICE@@demo"}}, sender, ctrl, time.Second, logging.NewNop())
	sched.Tick(context.Background())

	if len(sender.calls) != 1 || sender.calls[0] != "SERVICE@@demo" {
		t.Fatalf("expected one heartbeat, got %v", sender.calls)
	}
}
