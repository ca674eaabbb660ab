package registryadapter

import (
	"sync/atomic"
	"time"
)

// token is the cached Nacos access token and its absolute expiry.
type token struct {
	accessToken string
	expiresAt   time.Time
}

// tokenBox holds the process-wide token as an atomically-replaceable
// value (spec §5 Shared resources, §9 Token lifecycle): mutation is a
// single-threaded replace, never a partial update observable by a
// concurrent reader.
type tokenBox struct {
	v atomic.Value // holds *token
}

func (b *tokenBox) load() *token {
	v, _ := b.v.Load().(*token)
	return v
}

func (b *tokenBox) store(t *token) {
	b.v.Store(t)
}

// refreshWindow is how long before expiry the adapter proactively
// re-logs-in (spec §4.A: "refresh 60s before TTL").
const refreshWindow = 60 * time.Second

func (t *token) nearExpiry(now time.Time) bool {
	return t == nil || !now.Before(t.expiresAt.Add(-refreshWindow))
}
