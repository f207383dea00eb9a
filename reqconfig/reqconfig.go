// Package reqconfig binds a request-scoped override — the balancing pass
// count a single simulate request supplies — onto a context.Context.
// Other per-request choices (algorithm, max nominations, bond
// thresholds) travel in service.SimulateParams instead. The source tool keeps this
// kind of value in Rust task-local storage tied to the async task
// handling one request; Go has no equivalent, so the idiomatic
// translation is context.Context value propagation, the same mechanism
// the teacher's HTTP/RPC code already threads a request's deadline and
// cancellation through.
package reqconfig

import "context"

type contextKey int

const balancingKey contextKey = iota

// WithBalancingIterations returns a derived context carrying n as the
// balancing iteration count for this request only, without touching any
// process-wide state.
func WithBalancingIterations(ctx context.Context, n int) context.Context {
	return context.WithValue(ctx, balancingKey, n)
}

// BalancingIterations returns the request-scoped override and true if one
// was bound, or (0, false) if none was, in which case the caller uses its
// own default (service.Simulate falls back to SimulateParams.Iterations).
func BalancingIterations(ctx context.Context) (int, bool) {
	n, ok := ctx.Value(balancingKey).(int)
	return n, ok
}
