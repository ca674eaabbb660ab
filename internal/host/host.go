// Package host implements the Event Loop (spec §4.G): it owns every
// other component and drives the cadences that tie them together —
// initial registration, the heartbeat tick, the health-evaluation tick,
// the config long-poll watches, and the transport server — then tears
// all of it down on Shutdown.
//
// The teacher's Server.Serve/Shutdown (BX-D-mini-RPC/server/server.go)
// plays the same top-level role for mini-rpc: accept loop plus a
// deregister-then-drain shutdown sequence. This host has no single
// accept loop to drive everything from — the spec's single-threaded
// cooperative scheduler (§4.G, §9 "Cooperative single-threaded loop
// with mixed readiness") multiplexes A/D/E/F on one readiness
// primitive, which Go's own goroutines + netpoller already provide
// without a hand-rolled selector. What Host keeps from the teacher is
// the ordering discipline of Shutdown: deregister from the registry
// first (so clients stop being routed here), then stop accepting new
// work, then tear down what is left — never the other way around.
package host

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"servicehost/internal/config"
	"servicehost/internal/configwatch"
	"servicehost/internal/health"
	"servicehost/internal/heartbeat"
	"servicehost/internal/logging"
	"servicehost/internal/middleware"
	"servicehost/internal/registrar"
	"servicehost/internal/registryadapter"
	"servicehost/internal/transport"
)

// healthEvalInterval is the fixed 5 s cadence spec §4.C mandates for
// the per-identifier evaluation tick.
const healthEvalInterval = 5 * time.Second

// Host owns the full set of runtime components for one process (spec
// §3 "the host process exclusively owns all runtime state").
type Host struct {
	cfg *config.HostConfig
	log logging.Logger

	adapter   *registryadapter.Adapter
	registry  *registrar.Registry
	ctrl      *health.Controller
	scheduler *heartbeat.Scheduler
	cfgEngine *configwatch.Engine
	server    *transport.Server

	timeoutThreshold time.Duration

	stopWatches []func()
	wg          sync.WaitGroup
	cancel      context.CancelFunc

	shutdownOnce sync.Once
}

// New assembles a Host from a loaded configuration, a logger, a
// registry adapter, and the service registry already reflected by
// registrar.New (callers build the registrar themselves since only
// they know the Factory table for their implementations — spec §4.B).
func New(cfg *config.HostConfig, log logging.Logger, adapter *registryadapter.Adapter, registry *registrar.Registry) *Host {
	timeoutThreshold := time.Duration(cfg.Instance.TimeoutThreshold) * time.Millisecond
	ctrl := health.New(cfg.Instance.Weight, timeoutThreshold, cfg.Health.StatWindowSize, cfg.Health.AdjustCoolDown)

	targets := make([]heartbeat.Target, 0, len(registry.Entries()))
	for k, entry := range registry.Entries() {
		targets = append(targets, heartbeat.Target{
			Identifier: k,
			SafeName:   entry.SafeName,
			IP:         cfg.Instance.IP,
			Port:       cfg.Instance.Port,
			Namespace:  entry.Namespace,
			Metadata:   entry.Metadata,
			Ephemeral:  true,
		})
	}
	scheduler := heartbeat.New(targets, adapter, ctrl, cfg.Server.HeartbeatInterval, log)

	return &Host{
		cfg:              cfg,
		log:              log,
		adapter:          adapter,
		registry:         registry,
		ctrl:             ctrl,
		scheduler:        scheduler,
		cfgEngine:        configwatch.New(cfg.Server.Host, adapter, log),
		timeoutThreshold: timeoutThreshold,
	}
}

// Run performs initial registration (spec §4.B, fatal on failure),
// starts the heartbeat scheduler, the health-evaluation ticker, every
// enabled config watch, and the transport server, then blocks until ctx
// is cancelled. Once serving has begun, the host has already been shut
// down when Run returns; a startup failure (registration, config watch,
// or listen) returns the error without calling Shutdown.
func (h *Host) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	h.cancel = cancel

	if err := h.registerAll(runCtx); err != nil {
		return fmt.Errorf("host: initial registration: %w", err)
	}

	if err := h.startConfigWatches(runCtx); err != nil {
		return fmt.Errorf("host: start config watches: %w", err)
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.scheduler.Run(runCtx)
	}()

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.runHealthEvaluationLoop(runCtx)
	}()

	dispatcher := transport.NewDispatcher(h.registry, h.ctrl, h.timeoutThreshold)
	chain := middleware.Chain(
		middleware.Logging(h.log),
		middleware.RateLimit(h.cfg.RateLimit.RequestsPerSecond, h.cfg.RateLimit.Burst),
		middleware.Recovery(h.log, h.ctrl),
	)(dispatcher.AsHandlerFunc())

	h.server = transport.New(chain, h.log)
	if err := h.server.Listen(fmt.Sprintf("0.0.0.0:%d", h.cfg.Instance.Port)); err != nil {
		return fmt.Errorf("host: listen: %w", err)
	}

	h.log.Info("init", "host ready", zap.Int("port", h.cfg.Instance.Port), zap.Int("identifiers", len(h.registry.Entries())))

	serveErr := h.server.Serve(runCtx)
	h.Shutdown(context.Background())
	h.wg.Wait()
	return serveErr
}

// registerAll creates an ephemeral registry instance for every enabled
// identifier (spec §4.B). Any failure is fatal to startup.
func (h *Host) registerAll(ctx context.Context) error {
	for k, entry := range h.registry.Entries() {
		err := h.adapter.CreateInstance(ctx, entry.SafeName, h.cfg.Instance.IP, h.cfg.Instance.Port, entry.Namespace, entry.Metadata, h.cfg.Instance.Weight, true, true)
		if err != nil {
			return fmt.Errorf("register identifier %q: %w", k, err)
		}
		h.log.Info("service", "registered", zap.String("identifier", k), zap.String("safeName", entry.SafeName))
	}
	return nil
}

// startConfigWatches launches one configwatch.Engine watch per enabled
// ConfigSpec (spec §4.E). A file-backed sink writes the new content to
// ConfigSpec.File when set; otherwise the change is only logged — the
// spec's design notes (§9) explicitly forbid assuming a file is always
// the destination.
func (h *Host) startConfigWatches(ctx context.Context) error {
	for name, spec := range h.cfg.Config {
		if !spec.Enable {
			continue
		}
		name, spec := name, spec
		sink := func(content string) {
			h.log.Info("config", "changed", zap.String("watch", name), zap.Int("bytes", len(content)))
			if spec.File != "" {
				if err := writeConfigFile(spec.File, content); err != nil {
					h.log.Error("error", "failed to write config file", zap.String("watch", name), zap.Error(err))
				}
			}
		}

		stop, err := h.cfgEngine.Start(ctx, configwatch.Watch{
			Name:           name,
			DataID:         spec.DataID,
			Group:          spec.Group,
			Tenant:         spec.Tenant,
			PublishOnStart: spec.PublishOnStart,
			Sink:           sink,
		})
		if err != nil {
			return fmt.Errorf("start watch %q: %w", name, err)
		}
		h.stopWatches = append(h.stopWatches, stop)
	}
	return nil
}

// runHealthEvaluationLoop drives health.Controller.Evaluate for every
// currently-registered identifier on the fixed 5 s cadence (spec §4.C).
func (h *Host) runHealthEvaluationLoop(ctx context.Context) {
	ticker := time.NewTicker(healthEvalInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for k, entry := range h.registry.Entries() {
				k, entry := k, entry
				decision, ok := h.ctrl.Evaluate(k, time.Now(), func(identifier string, newWeight float64) error {
					return h.adapter.UpdateWeight(ctx, entry.SafeName, h.cfg.Instance.IP, h.cfg.Instance.Port, newWeight, entry.Namespace, true, entry.Metadata)
				})
				if !ok {
					continue
				}
				if decision.GateChanged {
					action := "stopped"
					if decision.NewGate == health.GateOpen {
						action = "resumed"
					}
					h.log.Info("heartbeat", action, zap.String("identifier", k))
				}
				if decision.WeightChanged {
					h.log.Info(fmt.Sprintf("%s service", k), "weight adjusted", zap.Float64("weight", decision.NewWeight))
				}
			}
		}
	}
}

// Shutdown deregisters every identifier, stops every config watch, and
// closes the transport server. Safe to call more than once; only the
// first call has effect (spec §6: "Must be safe to invoke once").
func (h *Host) Shutdown(ctx context.Context) {
	h.shutdownOnce.Do(func() {
		for k, entry := range h.registry.Entries() {
			if err := h.adapter.RemoveInstance(ctx, entry.SafeName, h.cfg.Instance.IP, h.cfg.Instance.Port, entry.Namespace, true); err != nil {
				h.log.Warn("exit", "failed to remove instance", zap.String("identifier", k), zap.Error(err))
			}
		}

		for _, stop := range h.stopWatches {
			stop()
		}

		if h.server != nil {
			h.server.Shutdown()
		}
		if h.cancel != nil {
			h.cancel()
		}
		h.log.Info("exit", "shutdown complete")
	})
}
