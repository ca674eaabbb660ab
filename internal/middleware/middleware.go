// Package middleware provides the dispatcher's request pipeline.
//
// This is the teacher's middleware package (BX-D-mini-RPC/middleware)
// generalized from its ServiceMethod/Payload/Error envelope to this
// host's *rpc.Request / *rpc.Response pair, keeping the same Chain /
// HandlerFunc onion model: Chain(A, B, C)(handler) == A(B(C(handler))).
package middleware

import (
	"context"

	"servicehost/internal/rpc"
)

// HandlerFunc processes one already-parsed JSON-RPC request and
// produces a response.
type HandlerFunc func(ctx context.Context, req *rpc.Request) *rpc.Response

// Middleware wraps a HandlerFunc with cross-cutting behavior.
type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares in the order given: the first middleware's
// "before" logic runs first and its "after" logic runs last.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
