package location

import (
	"context"
	"net/http"
	"sort"

	"github.com/restic/kvrecover/internal/backend"
	"github.com/restic/kvrecover/internal/backend/limiter"
)

type Registry struct {
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

func (r *Registry) Register(factory Factory) {
	if r.factories[factory.Scheme()] != nil {
		panic("duplicate backend")
	}
	r.factories[factory.Scheme()] = factory
}

func (r *Registry) Lookup(scheme string) Factory {
	return r.factories[scheme]
}

// Schemes returns the sorted list of registered copy implementations.
func (r *Registry) Schemes() []string {
	list := make([]string, 0, len(r.factories))
	for scheme := range r.factories {
		list = append(list, scheme)
	}
	sort.Strings(list)
	return list
}

type Factory interface {
	Scheme() string
	// NewConfig returns a pointer to a configuration with defaults applied.
	NewConfig() interface{}
	Open(ctx context.Context, cfg interface{}, rt http.RoundTripper, lim limiter.Limiter) (backend.Backend, error)
}

type genericBackendFactory[C any, T backend.Backend] struct {
	scheme      string
	newConfigFn func() C
	openFn      func(ctx context.Context, cfg C, rt http.RoundTripper, lim limiter.Limiter) (T, error)
}

func (f *genericBackendFactory[C, T]) Scheme() string {
	return f.scheme
}

func (f *genericBackendFactory[C, T]) NewConfig() interface{} {
	cfg := f.newConfigFn()
	return &cfg
}

func (f *genericBackendFactory[C, T]) Open(ctx context.Context, cfg interface{}, rt http.RoundTripper, lim limiter.Limiter) (backend.Backend, error) {
	return f.openFn(ctx, *cfg.(*C), rt, lim)
}

// NewHTTPBackendFactory returns a factory for backends that talk HTTP. The
// limiter is applied to the round tripper before openFn sees it.
func NewHTTPBackendFactory[C any, T backend.Backend](
	scheme string,
	newConfigFn func() C,
	openFn func(ctx context.Context, cfg C, rt http.RoundTripper) (T, error)) Factory {

	return &genericBackendFactory[C, T]{
		scheme:      scheme,
		newConfigFn: newConfigFn,
		openFn: func(ctx context.Context, cfg C, rt http.RoundTripper, lim limiter.Limiter) (T, error) {
			if lim != nil && rt != nil {
				rt = lim.Transport(rt)
			}
			return openFn(ctx, cfg, rt)
		},
	}
}

// NewLimitedBackendFactory returns a factory for backends that do not use
// HTTP. The returned backend is wrapped by the limiter.
func NewLimitedBackendFactory[C any, T backend.Backend](
	scheme string,
	newConfigFn func() C,
	openFn func(ctx context.Context, cfg C) (T, error)) Factory {

	return &genericBackendFactory[C, backend.Backend]{
		scheme:      scheme,
		newConfigFn: newConfigFn,
		openFn: func(ctx context.Context, cfg C, _ http.RoundTripper, lim limiter.Limiter) (backend.Backend, error) {
			be, err := openFn(ctx, cfg)
			if err != nil {
				return nil, err
			}
			if lim != nil {
				return limiter.LimitBackend(be, lim), nil
			}
			return be, nil
		},
	}
}
