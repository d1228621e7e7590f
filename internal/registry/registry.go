// Package registry stores and caches versioned validation templates, indexed
// by persona type.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ShayCichocki/veritas/pkg/models"
)

// ErrDuplicateTemplate indicates a register call reused an existing ID.
var ErrDuplicateTemplate = errors.New("template id already registered")

// ErrInvalidTemplate indicates the template failed structural validation.
var ErrInvalidTemplate = errors.New("invalid template")

// ErrTemplateNotFound indicates an update or delete referenced an unknown ID.
var ErrTemplateNotFound = errors.New("template not found")

// Registry is the authoritative store of validation templates. All mutations
// keep the backing store, the persona-type index, and the cache consistent
// under a single mutex.
type Registry struct {
	mu sync.RWMutex
	// store maps template ID to the owned template copy.
	store map[string]*models.ValidationTemplate
	// byPersona maps persona type to the IDs of templates for it.
	byPersona map[models.PersonaType][]string
	cache     *templateCache
	log       *zap.Logger
	// now is swappable for tests.
	now func() time.Time
}

// Options configures a Registry.
type Options struct {
	// CacheSize bounds the template cache; zero uses 64.
	CacheSize int
	// CacheTTL bounds cached entry age; zero disables expiry.
	CacheTTL time.Duration
	// Logger receives registry events; nil uses a no-op logger.
	Logger *zap.Logger
}

// New creates an empty Registry.
func New(opts Options) *Registry {
	if opts.CacheSize == 0 {
		opts.CacheSize = 64
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		store:     make(map[string]*models.ValidationTemplate),
		byPersona: make(map[models.PersonaType][]string),
		cache:     newTemplateCache(opts.CacheSize, opts.CacheTTL),
		log:       log.Named("registry"),
		now:       time.Now,
	}
}

// Register adds a new template. The template is validated on entry; its
// CreatedAt/UpdatedAt are stamped here.
func (r *Registry) Register(t *models.ValidationTemplate) error {
	if t == nil {
		return fmt.Errorf("%w: nil template", ErrInvalidTemplate)
	}
	if err := t.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.store[t.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTemplate, t.ID)
	}

	owned := t.Clone()
	now := r.now()
	owned.Metadata.CreatedAt = now
	owned.Metadata.UpdatedAt = now

	r.store[owned.ID] = owned
	r.byPersona[owned.PersonaType] = append(r.byPersona[owned.PersonaType], owned.ID)

	r.log.Info("template registered",
		zap.String("id", owned.ID),
		zap.String("persona_type", string(owned.PersonaType)),
		zap.String("version", owned.Version))
	return nil
}

// Get returns a defensive copy of the template, checking the cache before
// the backing store. A miss returns (nil, false), never an error.
func (r *Registry) Get(id string) (*models.ValidationTemplate, bool) {
	if cached, ok := r.cache.get(id); ok {
		return cached.Clone(), true
	}

	r.mu.RLock()
	t, ok := r.store[id]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}

	r.cache.put(id, t.Clone())
	return t.Clone(), true
}

// GetByPersonaType returns active templates for the persona type, sorted by
// version descending (major, minor, patch).
func (r *Registry) GetByPersonaType(pt models.PersonaType) []*models.ValidationTemplate {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.ValidationTemplate
	for _, id := range r.byPersona[pt] {
		t := r.store[id]
		if t == nil || !t.Metadata.IsActive {
			continue
		}
		out = append(out, t.Clone())
	}

	sort.SliceStable(out, func(i, j int) bool {
		return models.CompareVersions(out[i].Version, out[j].Version) > 0
	})
	return out
}

// GetLatestByPersonaType returns the highest-version active template for the
// persona type, or nil when none exists.
func (r *Registry) GetLatestByPersonaType(pt models.PersonaType) *models.ValidationTemplate {
	templates := r.GetByPersonaType(pt)
	if len(templates) == 0 {
		return nil
	}
	return templates[0]
}

// Update replaces an existing template. CreatedAt is preserved, UpdatedAt is
// bumped, and the cache entry is invalidated atomically with the store
// mutation.
func (r *Registry) Update(t *models.ValidationTemplate) error {
	if t == nil {
		return fmt.Errorf("%w: nil template", ErrInvalidTemplate)
	}
	if err := t.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.store[t.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTemplateNotFound, t.ID)
	}

	owned := t.Clone()
	owned.Metadata.CreatedAt = existing.Metadata.CreatedAt
	owned.Metadata.UpdatedAt = r.now()

	if existing.PersonaType != owned.PersonaType {
		r.removeFromIndexLocked(existing.PersonaType, t.ID)
		r.byPersona[owned.PersonaType] = append(r.byPersona[owned.PersonaType], owned.ID)
	}
	r.store[owned.ID] = owned
	r.cache.invalidate(owned.ID)

	r.log.Info("template updated", zap.String("id", owned.ID), zap.String("version", owned.Version))
	return nil
}

// Delete removes a template from the store, the persona index, and the cache.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.store[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
	}

	delete(r.store, id)
	r.removeFromIndexLocked(existing.PersonaType, id)
	r.cache.invalidate(id)

	r.log.Info("template deleted", zap.String("id", id))
	return nil
}

// List returns copies of all registered templates, active or not.
func (r *Registry) List() []*models.ValidationTemplate {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.ValidationTemplate, 0, len(r.store))
	for _, t := range r.store {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ErrorTypeForRule returns the declared error type of a rule within a
// template, when one is set. The metrics collector uses this to classify
// failures without guessing from rule names.
func (r *Registry) ErrorTypeForRule(templateID, ruleID string) (models.ErrorType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.store[templateID]
	if !ok {
		return "", false
	}
	for _, rule := range t.Rules {
		if rule.ID == ruleID && rule.ErrorType.Valid() {
			return rule.ErrorType, true
		}
	}
	return "", false
}

// removeFromIndexLocked drops the id from the persona index. Caller holds r.mu.
func (r *Registry) removeFromIndexLocked(pt models.PersonaType, id string) {
	ids := r.byPersona[pt]
	for i, existing := range ids {
		if existing == id {
			r.byPersona[pt] = append(ids[:i], ids[i+1:]...)
			return
		}
	}
}
