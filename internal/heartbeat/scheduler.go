// Package heartbeat implements the Heartbeat Scheduler (spec §4.D): at
// each tick it emits one heartbeat per enabled, gate-open identifier
// using the controller's current weight, and tolerates individual
// failures without mutating any state.
package heartbeat

import (
	"context"
	"time"

	"go.uber.org/zap"

	"servicehost/internal/health"
	"servicehost/internal/logging"
)

// Target describes one identifier's heartbeat coordinates.
type Target struct {
	Identifier string
	SafeName   string
	IP         string
	Port       int
	Namespace  string
	Metadata   map[string]string
	Ephemeral  bool
}

// Sender is the subset of the Registry Adapter the scheduler needs.
type Sender interface {
	SendBeat(ctx context.Context, safeName, ip string, port int, namespace string, metadata map[string]string, ephemeral bool, weight float64, interval time.Duration) error
}

// Scheduler emits heartbeats for a fixed set of targets at a fixed
// cadence.
type Scheduler struct {
	targets  []Target
	sender   Sender
	ctrl     *health.Controller
	interval time.Duration
	log      logging.Logger
}

// New builds a Scheduler. interval is H_iv.
func New(targets []Target, sender Sender, ctrl *health.Controller, interval time.Duration, log logging.Logger) *Scheduler {
	return &Scheduler{targets: targets, sender: sender, ctrl: ctrl, interval: interval, log: log}
}

// Tick performs one heartbeat pass over every target, skipping those
// whose gate is closed (spec §4.D).
func (s *Scheduler) Tick(ctx context.Context) {
	for _, t := range s.targets {
		if s.ctrl.GateState(t.Identifier) == health.GateClosed {
			s.log.Info("heartbeat", "stopped", zap.String("identifier", t.Identifier))
			continue
		}

		weight := s.ctrl.Weight(t.Identifier)
		if err := s.sender.SendBeat(ctx, t.SafeName, t.IP, t.Port, t.Namespace, t.Metadata, t.Ephemeral, weight, s.interval); err != nil {
			s.log.Warn("heartbeat", "send failed", zap.String("identifier", t.Identifier), zap.Error(err))
		}
	}
}

// Run drives Tick on s.interval until ctx is cancelled. Callers that
// already multiplex their own event loop (spec §4.G) should call Tick
// directly from their own periodic timer instead.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}
