package configwatch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"servicehost/internal/logging"
)

// longPollTimeout is the registry's server-side long-poll budget (spec
// §4.E, §6): "Long-Pulling-Timeout: 30000".
const longPollTimeout = 30 * time.Second

// clientTimeout gives the HTTP round trip enough slack beyond the
// server's own timeout to read the (possibly empty) response before the
// client gives up first.
const clientTimeout = longPollTimeout + 5*time.Second

// Sink receives the new content exactly once per genuine change (spec
// §3 ConfigSpec, §4.E).
type Sink func(content string)

// Registry is the subset of the Registry Adapter the engine needs.
type Registry interface {
	GetConfig(ctx context.Context, dataID, group, tenant string) (string, error)
	PublishConfig(ctx context.Context, dataID, group, content, tenant string) error
	Token(ctx context.Context) (string, error)
}

// Watch is one enabled ConfigSpec under observation.
type Watch struct {
	Name           string
	DataID         string
	Group          string
	Tenant         string
	PublishOnStart bool
	InitialContent string
	Sink           Sink
}

// Engine runs one long-poll loop per Watch, each in its own goroutine
// (spec §4.E, §9 "Cooperative single-threaded loop with mixed
// readiness": the registry offers no async primitive here, so each
// watch is pushed to its own lightweight goroutine rather than blocking
// a shared loop, with the sink invocation itself still happening
// synchronously and one-at-a-time per watch — never two concurrent
// sink calls for the same Watch).
type Engine struct {
	baseURL string
	reg     Registry
	client  *http.Client
	log     logging.Logger

	mu      sync.Mutex
	content map[string]string // Name -> last known content
}

// New builds an Engine. baseURL is the registry's base URL (used to
// build the listener endpoint directly, since the long-poll call needs
// header/timeout control the Registry interface's GetConfig does not
// expose).
func New(baseURL string, reg Registry, log logging.Logger) *Engine {
	return &Engine{
		baseURL: strings.TrimRight(baseURL, "/"),
		reg:     reg,
		client:  &http.Client{Timeout: clientTimeout},
		log:     log,
		content: make(map[string]string),
	}
}

// Start launches the watch loop for w and returns a function that stops
// it. If w.PublishOnStart is set, the initial content is published
// before the watch loop begins.
func (e *Engine) Start(ctx context.Context, w Watch) (stop func(), err error) {
	if w.PublishOnStart {
		if pubErr := e.reg.PublishConfig(ctx, w.DataID, w.Group, w.InitialContent, w.Tenant); pubErr != nil {
			return nil, fmt.Errorf("configwatch: publish on start for %q: %w", w.Name, pubErr)
		}
	}

	e.mu.Lock()
	e.content[w.Name] = w.InitialContent
	e.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		e.runLoop(runCtx, w)
	}()

	return func() {
		cancel()
		wg.Wait()
	}, nil
}

func (e *Engine) currentContent(name string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.content[name]
}

func (e *Engine) setContent(name, content string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.content[name] = content
}

// runLoop implements the per-watch state machine: connecting -> sending
// -> awaiting -> processing -> sending (reuse), or -> closed on error
// (spec §4.E).
func (e *Engine) runLoop(ctx context.Context, w Watch) {
	for {
		if ctx.Err() != nil {
			return
		}

		backoff, changed := e.oneExchange(ctx, w)
		if changed {
			continue // reuse: go straight into the next long-poll request
		}
		if backoff > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
		}
	}
}

// oneExchange performs one sending->awaiting->processing cycle. It
// returns a retry backoff (0 if none is needed) and whether a change
// was just processed (in which case the caller should re-prime
// immediately rather than wait out a backoff it never earned).
func (e *Engine) oneExchange(ctx context.Context, w Watch) (backoff time.Duration, changed bool) {
	content := e.currentContent(w.Name)
	payload := buildWatchPayload(w.DataID, w.Group, content)

	token, err := e.reg.Token(ctx)
	if err != nil {
		e.log.Warn("config", "failed to obtain token", zap.String("watch", w.Name), zap.Error(err))
		return 3 * time.Second, false
	}

	form := url.Values{
		"Listening-Configs": {payload},
	}
	if w.Tenant != "" {
		form.Set("tenant", w.Tenant)
	}
	form.Set("accessToken", token)

	reqCtx, cancel := context.WithTimeout(ctx, clientTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, e.baseURL+"/nacos/v1/cs/configs/listener", strings.NewReader(form.Encode()))
	if err != nil {
		e.log.Error("config", "failed to build watch request", zap.String("watch", w.Name), zap.Error(err))
		return 3 * time.Second, false
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Long-Pulling-Timeout", "30000")

	resp, err := e.client.Do(req)
	if err != nil {
		e.log.Warn("config", "long-poll I/O error", zap.String("watch", w.Name), zap.Error(err))
		return 3 * time.Second, false
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		e.log.Warn("config", "long-poll read error", zap.String("watch", w.Name), zap.Error(err))
		return 3 * time.Second, false
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		e.log.Warn("config", "long-poll auth rejected, refreshing token", zap.String("watch", w.Name))
		// A Registry that can log in (the Registry Adapter) is asked for a
		// fresh token; any other keeps serving its cached one.
		if r, ok := e.reg.(interface {
			Login(ctx context.Context) (string, time.Duration, error)
		}); ok {
			if _, _, loginErr := r.Login(ctx); loginErr != nil {
				e.log.Warn("config", "token refresh failed", zap.String("watch", w.Name), zap.Error(loginErr))
			}
		}
		return 2 * time.Second, false
	case resp.StatusCode == http.StatusBadRequest:
		e.log.Warn("config", "long-poll bad request", zap.String("watch", w.Name))
		return 3 * time.Second, false
	case resp.StatusCode != http.StatusOK:
		e.log.Warn("config", "long-poll unexpected status", zap.String("watch", w.Name), zap.Int("status", resp.StatusCode))
		return 3 * time.Second, false
	}

	if len(body) == 0 {
		return 0, false // no change; reuse is implicit via the next loop iteration
	}

	records, err := parseChangeNotification(body)
	if err != nil {
		e.log.Error("config", "malformed change notification", zap.String("watch", w.Name), zap.Error(err))
		return 0, false
	}

	matched := false
	for _, rec := range records {
		if rec.DataID == w.DataID && rec.Group == normalizeGroup(w.Group) {
			matched = true
			break
		}
	}
	if !matched {
		return 0, false
	}

	newContent, err := e.reg.GetConfig(ctx, w.DataID, w.Group, w.Tenant)
	if err != nil {
		e.log.Error("config", "failed to fetch changed config", zap.String("watch", w.Name), zap.Error(err))
		return 0, false
	}

	if newContent == content {
		return 0, false // unchanged despite the notification; do not invoke the sink again
	}

	e.setContent(w.Name, newContent)
	if w.Sink != nil {
		w.Sink(newContent)
	}
	return 0, true
}

func normalizeGroup(group string) string {
	if group == "" {
		return "default"
	}
	return group
}
