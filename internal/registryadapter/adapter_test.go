package registryadapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"servicehost/internal/logging"
)

func TestLoginCachesToken(t *testing.T) {
	var logins atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/nacos/v1/auth/login" {
			logins.Add(1)
			json.NewEncoder(w).Encode(loginResponse{AccessToken: "tok-1", TokenTTL: 18000})
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	a := New(srv.URL, "user", "pass", logging.NewNop())

	if err := a.PublishConfig(context.Background(), "d", "g", "c", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := a.PublishConfig(context.Background(), "d", "g", "c", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := a.PublishConfig(context.Background(), "d", "g", "c", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if logins.Load() != 1 {
		t.Fatalf("expected exactly 1 login call, got %d", logins.Load())
	}
}

func TestAuthedRequestRetriesOnceAfter401(t *testing.T) {
	var calls atomic.Int32
	var logins atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/nacos/v1/auth/login":
			logins.Add(1)
			json.NewEncoder(w).Encode(loginResponse{AccessToken: "tok", TokenTTL: 18000})
		case "/nacos/v1/ns/instance/beat":
			n := calls.Add(1)
			if n == 1 {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Write([]byte(`{"clientBeatInterval":5000}`))
		}
	}))
	defer srv.Close()

	a := New(srv.URL, "user", "pass", logging.NewNop())
	err := a.SendBeat(context.Background(), "SERVICE@@demo", "127.0.0.1", 9000, "public", nil, true, 100, 0)
	if err != nil {
		t.Fatalf("unexpected error after retry: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 beat attempts, got %d", calls.Load())
	}
	if logins.Load() != 2 {
		t.Fatalf("expected login then forced re-login, got %d", logins.Load())
	}
}

func TestGetConfigReturnsContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/nacos/v1/auth/login":
			json.NewEncoder(w).Encode(loginResponse{AccessToken: "tok", TokenTTL: 18000})
		case "/nacos/v1/cs/configs":
			w.Write([]byte("hello=world"))
		}
	}))
	defer srv.Close()

	a := New(srv.URL, "u", "p", logging.NewNop())
	content, err := a.GetConfig(context.Background(), "default", "default", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if content != "hello=world" {
		t.Fatalf("got %q", content)
	}
}
