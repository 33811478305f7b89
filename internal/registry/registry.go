package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/joss/ensemble/internal/logging"
)

// Registry errors.
var (
	// ErrDuplicateID indicates a descriptor with the same id exists.
	ErrDuplicateID = errors.New("provider id already registered")

	// ErrNotFound indicates no descriptor has the requested id.
	ErrNotFound = errors.New("provider not found")

	// ErrBuiltIn indicates an attempt to remove a built-in descriptor.
	ErrBuiltIn = errors.New("built-in provider is immutable")
)

// Store persists the custom descriptor subset as flat records keyed by id.
type Store interface {
	SaveDescriptor(ctx context.Context, id string, blob []byte) error
	DeleteDescriptor(ctx context.Context, id string) error
	LoadDescriptors(ctx context.Context) (map[string][]byte, error)
}

// Registry holds built-in and custom provider descriptors. Reads are
// concurrent; at most one writer mutates at a time, and every mutation
// to the custom subset is persisted before it takes effect.
type Registry struct {
	mu      sync.RWMutex
	builtin map[string]Descriptor
	custom  map[string]Descriptor
	store   Store
	log     zerolog.Logger
}

// New creates a registry with the default built-ins and loads any
// persisted custom descriptors from the store. A nil store keeps the
// custom subset memory-only.
func New(ctx context.Context, store Store) (*Registry, error) {
	r := &Registry{
		builtin: builtins(),
		custom:  make(map[string]Descriptor),
		store:   store,
		log:     logging.New("registry"),
	}

	if store != nil {
		blobs, err := store.LoadDescriptors(ctx)
		if err != nil {
			return nil, fmt.Errorf("load custom providers: %w", err)
		}
		for id, blob := range blobs {
			var d Descriptor
			if err := json.Unmarshal(blob, &d); err != nil {
				r.log.Warn().Str("provider", id).Err(err).Msg("skipping unreadable descriptor")
				continue
			}
			d.BuiltIn = false
			r.custom[d.ID] = d
		}
		r.log.Info().Int("custom", len(r.custom)).Msg("loaded custom providers")
	}

	return r, nil
}

// Register adds a new custom descriptor. Fails with ErrDuplicateID if
// any descriptor (built-in or custom) already has the id.
func (r *Registry) Register(ctx context.Context, d Descriptor) error {
	if d.ID == "" {
		return fmt.Errorf("descriptor id is required")
	}
	if d.BaseURL == "" {
		return fmt.Errorf("descriptor base url is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.builtin[d.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, d.ID)
	}
	if _, ok := r.custom[d.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, d.ID)
	}

	d.BuiltIn = false
	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now

	if err := r.persist(ctx, d); err != nil {
		return err
	}
	r.custom[d.ID] = d
	r.log.Info().Str("provider", d.ID).Msg("registered custom provider")
	return nil
}

// Update applies a partial update to a descriptor. Built-ins accept
// updates too (e.g. disabling); only removal is forbidden for them.
// Updated built-ins are not persisted; the override lives for the
// process lifetime, matching load-time configuration semantics.
func (r *Registry) Update(ctx context.Context, id string, p Patch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, custom, ok := r.lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	apply(&d, p)
	d.UpdatedAt = time.Now().UTC()

	if custom {
		if err := r.persist(ctx, d); err != nil {
			return err
		}
		r.custom[id] = d
	} else {
		r.builtin[id] = d
	}
	r.log.Info().Str("provider", id).Msg("updated provider")
	return nil
}

// Remove deletes a custom descriptor. Fails with ErrBuiltIn for
// built-ins and ErrNotFound for unknown ids.
func (r *Registry) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.builtin[id]; ok {
		return fmt.Errorf("%w: %s", ErrBuiltIn, id)
	}
	if _, ok := r.custom[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if r.store != nil {
		if err := r.store.DeleteDescriptor(ctx, id); err != nil {
			return fmt.Errorf("delete provider %s: %w", id, err)
		}
	}
	delete(r.custom, id)
	r.log.Info().Str("provider", id).Msg("removed custom provider")
	return nil
}

// Get returns a copy of the descriptor for id.
func (r *Registry) Get(id string) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, _, ok := r.lookup(id)
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return d, nil
}

// List returns a lazy, restartable sequence of descriptors matching
// the filter, ordered by id for determinism.
func (r *Registry) List(f Filter) iter.Seq[Descriptor] {
	return func(yield func(Descriptor) bool) {
		for _, d := range r.snapshot(f) {
			if !yield(d) {
				return
			}
		}
	}
}

// Snapshot returns the matching descriptors as a slice.
func (r *Registry) Snapshot(f Filter) []Descriptor {
	return r.snapshot(f)
}

// ByQuality returns the descriptors for ids ordered by descending
// quality rank. Unknown ids are skipped.
func (r *Registry) ByQuality(ids []string) []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(ids))
	for _, id := range ids {
		if d, _, ok := r.lookup(id); ok {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Quality > out[j].Quality })
	return out
}

// Export returns the descriptor for sharing.
func (r *Registry) Export(id string) (Descriptor, error) {
	return r.Get(id)
}

// Import registers a shared descriptor. With overwrite set, an existing
// custom descriptor with the same id is replaced; built-in ids are
// always rejected.
func (r *Registry) Import(ctx context.Context, d Descriptor, overwrite bool) error {
	if !overwrite {
		return r.Register(ctx, d)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.builtin[d.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, d.ID)
	}

	d.BuiltIn = false
	d.UpdatedAt = time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = d.UpdatedAt
	}
	if err := r.persist(ctx, d); err != nil {
		return err
	}
	r.custom[d.ID] = d
	r.log.Info().Str("provider", d.ID).Bool("overwrite", true).Msg("imported provider")
	return nil
}

// lookup must be called with at least a read lock held.
func (r *Registry) lookup(id string) (Descriptor, bool, bool) {
	if d, ok := r.custom[id]; ok {
		return d, true, true
	}
	if d, ok := r.builtin[id]; ok {
		return d, false, true
	}
	return Descriptor{}, false, false
}

func (r *Registry) snapshot(f Filter) []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Descriptor
	if f.BuiltIn {
		for _, d := range r.builtin {
			if !f.EnabledOnly || d.Enabled {
				out = append(out, d)
			}
		}
	}
	if f.Custom {
		for _, d := range r.custom {
			if !f.EnabledOnly || d.Enabled {
				out = append(out, d)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Registry) persist(ctx context.Context, d Descriptor) error {
	if r.store == nil {
		return nil
	}
	blob, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal descriptor %s: %w", d.ID, err)
	}
	if err := r.store.SaveDescriptor(ctx, d.ID, blob); err != nil {
		return fmt.Errorf("persist provider %s: %w", d.ID, err)
	}
	return nil
}

func apply(d *Descriptor, p Patch) {
	if p.Name != nil {
		d.Name = *p.Name
	}
	if p.BaseURL != nil {
		d.BaseURL = *p.BaseURL
	}
	if p.APIKeyEnv != nil {
		d.APIKeyEnv = *p.APIKeyEnv
	}
	if p.Model != nil {
		d.Model = *p.Model
	}
	if p.InputCost != nil {
		d.InputCost = *p.InputCost
	}
	if p.OutputCost != nil {
		d.OutputCost = *p.OutputCost
	}
	if p.SpeedFactor != nil {
		d.SpeedFactor = *p.SpeedFactor
	}
	if p.Quality != nil {
		d.Quality = *p.Quality
	}
	if p.Concurrency != nil {
		d.Concurrency = *p.Concurrency
	}
	if p.Enabled != nil {
		d.Enabled = *p.Enabled
	}
	if p.Description != nil {
		d.Description = *p.Description
	}
	if p.Tags != nil {
		d.Tags = p.Tags
	}
	if p.Template != nil {
		d.Template = p.Template
	}
}
