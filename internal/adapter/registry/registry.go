// Package registry implements ports.ProviderRegistry: the set of
// configured upstreams, held in a lock-free map so ranking a request
// never blocks on a concurrent registration or hot-reload.
package registry

import (
	"sort"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/routellm/llmrouter/internal/core/domain"
)

// Registry implements ports.ProviderRegistry using a lock-free, per-key
// map so ranking a request never blocks on a concurrent registration.
type Registry struct {
	byName *xsync.Map[string, domain.Provider]
	order  *xsync.Map[string, int]
	seq    int64
}

func New() *Registry {
	return &Registry{
		byName: xsync.NewMap[string, domain.Provider](),
		order:  xsync.NewMap[string, int](),
	}
}

// Register adds or replaces a statically configured provider.
func (r *Registry) Register(spec domain.Provider) error {
	return r.register(spec)
}

// RegisterBYOC adds a caller-supplied, already-constructed adapter under
// name, subject to the same validation as Register. There is no
// construct-later step: the caller hands over a fully formed adapter.
func (r *Registry) RegisterBYOC(name string, adapter domain.Adapter, spec domain.Provider) error {
	spec.Name = name
	spec.Adapter = adapter
	return r.register(spec)
}

func (r *Registry) register(spec domain.Provider) error {
	if spec.Name == "" {
		return domain.NewConfigValidationError("name", spec.Name, "must not be empty")
	}
	if spec.RPMLimit <= 0 {
		return domain.NewConfigValidationError("rpm_limit", spec.RPMLimit, "must be positive")
	}
	if spec.TPMLimit <= 0 {
		return domain.NewConfigValidationError("tpm_limit", spec.TPMLimit, "must be positive")
	}
	if spec.Weight < 0 || spec.Weight > 1 {
		return domain.NewConfigValidationError("weight", spec.Weight, "must be within [0,1]")
	}
	if spec.Adapter == nil {
		return domain.NewConfigValidationError("adapter", nil, "must not be nil")
	}

	if _, exists := r.order.Load(spec.Name); !exists {
		r.order.Store(spec.Name, int(atomic.AddInt64(&r.seq, 1)))
	}
	r.byName.Store(spec.Name, spec)
	return nil
}

// Snapshot returns the current set of enabled providers, in registration
// order, so the scorer's stable sort has a deterministic tie-break.
func (r *Registry) Snapshot() []domain.Provider {
	type ordered struct {
		provider domain.Provider
		position int
	}
	var all []ordered
	r.byName.Range(func(name string, p domain.Provider) bool {
		if !p.Enabled {
			return true
		}
		pos, _ := r.order.Load(name)
		all = append(all, ordered{provider: p, position: pos})
		return true
	})

	sort.Slice(all, func(i, j int) bool { return all[i].position < all[j].position })

	out := make([]domain.Provider, len(all))
	for i, o := range all {
		out[i] = o.provider
	}
	return out
}

// Get returns the named provider, regardless of its enabled state.
func (r *Registry) Get(name string) (domain.Provider, bool) {
	return r.byName.Load(name)
}
