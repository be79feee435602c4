package obs

import (
	"context"
	"net/http"
	"sync"
)

// Annotations collects what handlers learn while serving a request so the
// outer logging and metrics middleware can report it once next returns.
type Annotations struct {
	mu       sync.Mutex
	route    string
	degraded bool
}

type annotationsKey struct{}

// WithAnnotations attaches an empty Annotations to ctx unless one is already
// present, and returns it.
func WithAnnotations(ctx context.Context) (context.Context, *Annotations) {
	if ctx == nil {
		ctx = context.Background()
	}
	if a := annotationsFrom(ctx); a != nil {
		return ctx, a
	}
	a := &Annotations{}
	return context.WithValue(ctx, annotationsKey{}, a), a
}

func annotationsFrom(ctx context.Context) *Annotations {
	if ctx == nil {
		return nil
	}
	a, _ := ctx.Value(annotationsKey{}).(*Annotations)
	return a
}

// AnnotateMiddleware installs request annotations for everything below it.
// Mount it before the logging and metrics middleware.
func AnnotateMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, _ := WithAnnotations(r.Context())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// MarkDegraded flags the response as built from fallback prices.
func MarkDegraded(ctx context.Context) {
	if a := annotationsFrom(ctx); a != nil {
		a.mu.Lock()
		a.degraded = true
		a.mu.Unlock()
	}
}

// Degraded reports whether a handler marked the request degraded.
func Degraded(ctx context.Context) bool {
	a := annotationsFrom(ctx)
	if a == nil {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.degraded
}

// WithRoutePattern overrides the route label used for logs, metrics and span
// names.
func WithRoutePattern(ctx context.Context, pattern string) context.Context {
	ctx, a := WithAnnotations(ctx)
	a.mu.Lock()
	a.route = pattern
	a.mu.Unlock()
	return ctx
}

// RoutePatternFromContext returns a pattern set with WithRoutePattern.
func RoutePatternFromContext(ctx context.Context) string {
	a := annotationsFrom(ctx)
	if a == nil {
		return ""
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.route
}
