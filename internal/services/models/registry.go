package models

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	domsvc "CryptoCast/internal/domain/service"
	"CryptoCast/internal/services/forecast"
	xhttp "CryptoCast/pkg/http"
	applogger "CryptoCast/pkg/logger"
)

// Builder produces a fresh set of models keyed by upper-case symbol.
type Builder interface {
	Build(ctx context.Context) (map[string]domsvc.Regressor, error)
}

type snapshot struct {
	models     map[string]domsvc.Regressor
	generation uint64
	loadedAt   time.Time
}

// Registry serves models from an immutable snapshot that Reload replaces atomically.
// Callers holding a Regressor keep using it after a swap.
type Registry struct {
	builder Builder
	current atomic.Pointer[snapshot]
	l       *applogger.Logger
	now     func() time.Time
}

type RegistryOption func(*Registry)

func WithRegistryLogger(l *applogger.Logger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.l = l
		}
	}
}

func NewRegistry(b Builder, opts ...RegistryOption) *Registry {
	r := &Registry{builder: b, l: applogger.Nop(), now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	r.current.Store(&snapshot{models: map[string]domsvc.Regressor{}})
	return r
}

// Reload builds a new snapshot and swaps it in. A build that yields no models while
// the current snapshot has some is rejected and the current snapshot is kept.
func (r *Registry) Reload(ctx context.Context) (int, error) {
	built, err := r.builder.Build(ctx)
	if err != nil {
		return 0, fmt.Errorf("build models: %w", err)
	}

	prev := r.current.Load()
	if len(built) == 0 && len(prev.models) > 0 {
		return len(prev.models), fmt.Errorf("reload produced no models; keeping generation %d", prev.generation)
	}

	next := &snapshot{models: built, generation: prev.generation + 1, loadedAt: r.now()}
	r.current.Store(next)
	r.l.Info("model registry loaded",
		applogger.Int("models", len(built)),
		applogger.Strings("symbols", sortedKeys(built)),
		applogger.Int64("generation", int64(next.generation)),
	)
	return len(built), nil
}

func (r *Registry) Load(symbol string) (domsvc.Regressor, error) {
	snap := r.current.Load()
	if m, ok := snap.models[strings.ToUpper(symbol)]; ok {
		return m, nil
	}
	return nil, &forecast.UnknownSymbolError{Symbol: symbol, Available: sortedKeys(snap.models)}
}

func (r *Registry) Available() []string {
	return sortedKeys(r.current.Load().models)
}

// Generation increases by one on every successful reload.
func (r *Registry) Generation() uint64 {
	return r.current.Load().generation
}

func (r *Registry) LoadedAt() time.Time {
	return r.current.Load().loadedAt
}

func sortedKeys(m map[string]domsvc.Regressor) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ArtifactBuilder loads JSON artifacts from a Source. For each symbol it tries the
// configured name, then the name with ".json" appended. Missing or invalid artifacts
// are logged and skipped.
type ArtifactBuilder struct {
	source   Source
	paths    map[string]string
	features []string
	l        *applogger.Logger
}

func NewArtifactBuilder(source Source, paths map[string]string, features []string, l *applogger.Logger) *ArtifactBuilder {
	if l == nil {
		l = applogger.Nop()
	}
	norm := make(map[string]string, len(paths))
	for sym, p := range paths {
		norm[strings.ToUpper(sym)] = p
	}
	return &ArtifactBuilder{source: source, paths: norm, features: features, l: l}
}

func (b *ArtifactBuilder) Build(ctx context.Context) (map[string]domsvc.Regressor, error) {
	out := make(map[string]domsvc.Regressor, len(b.paths))
	for _, sym := range sortedPathKeys(b.paths) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m, err := b.loadOne(ctx, b.paths[sym])
		if err != nil {
			b.l.Warn("model not loaded",
				applogger.String("symbol", sym),
				applogger.String("path", b.source.Describe(b.paths[sym])),
				applogger.Error(err),
			)
			continue
		}
		out[sym] = m
	}
	return out, nil
}

func (b *ArtifactBuilder) loadOne(ctx context.Context, name string) (domsvc.Regressor, error) {
	var data []byte
	var err error
	for _, candidate := range []string{name, name + ".json"} {
		data, err = b.source.Fetch(ctx, candidate)
		if !errors.Is(err, ErrArtifactNotFound) {
			break
		}
	}
	if err != nil {
		return nil, err
	}
	return Decode(data, b.features)
}

func sortedPathKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// RemoteBuilder binds every symbol to a remote model server.
type RemoteBuilder struct {
	baseURL string
	symbols []string
	client  *xhttp.Client
}

func NewRemoteBuilder(baseURL string, symbols []string, client *xhttp.Client) *RemoteBuilder {
	return &RemoteBuilder{baseURL: baseURL, symbols: symbols, client: client}
}

func (b *RemoteBuilder) Build(_ context.Context) (map[string]domsvc.Regressor, error) {
	out := make(map[string]domsvc.Regressor, len(b.symbols))
	for _, s := range b.symbols {
		sym := strings.ToUpper(s)
		out[sym] = NewRemote(sym, b.baseURL, b.client)
	}
	return out, nil
}
