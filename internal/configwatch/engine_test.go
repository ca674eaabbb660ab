package configwatch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"servicehost/internal/logging"
)

type fakeRegistry struct {
	mu      sync.Mutex
	content string
}

func (f *fakeRegistry) GetConfig(ctx context.Context, dataID, group, tenant string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.content, nil
}

func (f *fakeRegistry) PublishConfig(ctx context.Context, dataID, group, content, tenant string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.content = content
	return nil
}

func (f *fakeRegistry) Token(ctx context.Context) (string, error) {
	return "tok", nil
}

func TestEngineInvokesSinkExactlyOnceOnChange(t *testing.T) {
	var requestCount atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := requestCount.Add(1)
		if n == 1 {
			w.Write([]byte("default\x02default\x01"))
			return
		}
		// Subsequent long-polls hang until the test cancels the context;
		// simulate that by blocking briefly then returning no change.
		time.Sleep(20 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	reg := &fakeRegistry{content: "updated-content"}
	eng := New(srv.URL, reg, logging.NewNop())

	var sinkCalls atomic.Int32
	var lastContent string
	var mu sync.Mutex

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop, err := eng.Start(ctx, Watch{
		Name:           "default",
		DataID:         "default",
		Group:          "default",
		InitialContent: "",
		Sink: func(content string) {
			sinkCalls.Add(1)
			mu.Lock()
			lastContent = content
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer stop()

	deadline := time.Now().Add(2 * time.Second)
	for sinkCalls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if sinkCalls.Load() != 1 {
		t.Fatalf("expected exactly 1 sink call, got %d", sinkCalls.Load())
	}
	mu.Lock()
	got := lastContent
	mu.Unlock()
	if got != "updated-content" {
		t.Fatalf("got content %q", got)
	}
}

func TestEngineSkipsSinkWhenContentUnchanged(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("default\x02default\x01"))
	}))
	defer srv.Close()

	reg := &fakeRegistry{content: "same"}
	eng := New(srv.URL, reg, logging.NewNop())

	var sinkCalls atomic.Int32
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	stop, err := eng.Start(ctx, Watch{
		Name:           "default",
		DataID:         "default",
		Group:          "default",
		InitialContent: "same",
		Sink:           func(content string) { sinkCalls.Add(1) },
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer stop()

	<-ctx.Done()
	if sinkCalls.Load() != 0 {
		t.Fatalf("expected no sink calls when content unchanged, got %d", sinkCalls.Load())
	}
}
