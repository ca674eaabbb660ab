package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"servicehost/internal/logging"
	"servicehost/internal/rpc"
)

// Logging logs method, duration, and error for every dispatched
// request, adapted from the teacher's LoggingMiddleware (which logged
// via the bare "log" package; this host routes everything through the
// tagged Logger instead).
func Logging(log logging.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *rpc.Request) *rpc.Response {
			start := time.Now()
			resp := next(ctx, req)
			duration := time.Since(start)

			fields := []zap.Field{zap.String("method", req.Method), zap.Duration("duration", duration)}
			if resp.Error != nil {
				fields = append(fields, zap.Int("code", resp.Error.Code), zap.String("error", resp.Error.Message))
				log.Warn("tcp", "dispatch failed", fields...)
			} else {
				log.Debug("tcp", "dispatch ok", fields...)
			}
			return resp
		}
	}
}
