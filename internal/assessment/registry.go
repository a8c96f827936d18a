// Package assessment loads configurable assessment type definitions and maps a
// student's raw records into uniform assessment data.
package assessment

import (
	"context"
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"sync"
	"text/template"

	"gopkg.in/yaml.v3"

	"lessonforge/internal/logging"
	"lessonforge/internal/types"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Source kinds understood by MapStudent.
const (
	SourceReadingLevel   = "profile.reading_level"
	SourceIEPGoals       = "profile.iep_goals"
	SourceCognitive      = "profile.cognitive"
	SourceAccommodations = "profile.accommodations"
	SourceMetrics        = "metrics"
	SourceRecords        = "records"
)

var validCategories = map[string]bool{
	types.CategoryAcademic:    true,
	types.CategoryCognitive:   true,
	types.CategoryBehavioral:  true,
	types.CategoryPerformance: true,
	types.CategoryIEP:         true,
}

// Store is the persistence the registry reads from.
type Store interface {
	ListAssessmentTypes(ctx context.Context, activeOnly bool) ([]types.AssessmentType, error)
	UpsertAssessmentType(ctx context.Context, t *types.AssessmentType) error
	CountAssessmentTypes(ctx context.Context) (int, error)
	GetProfile(ctx context.Context, studentID string) (*types.StudentProfile, error)
	RecentMetrics(ctx context.Context, studentID, subject string, limit int) ([]types.PerformanceMetric, error)
	LatestAssessmentRecords(ctx context.Context, studentID string) (map[string]types.AssessmentRecord, error)
}

// Registry caches active assessment type definitions by key.
type Registry struct {
	store        Store
	metricsLimit int

	mu        sync.RWMutex
	byKey     map[string]types.AssessmentType
	templates map[string]*template.Template
	loaded    bool
}

// NewRegistry creates a registry backed by store. metricsLimit bounds the
// metrics read per student for the metrics source.
func NewRegistry(store Store, metricsLimit int) *Registry {
	if metricsLimit <= 0 {
		metricsLimit = 20
	}
	return &Registry{
		store:        store,
		metricsLimit: metricsLimit,
		byKey:        make(map[string]types.AssessmentType),
		templates:    make(map[string]*template.Template),
	}
}

// Load reads the active definitions from the store into the cache.
func (r *Registry) Load(ctx context.Context) error {
	timer := logging.StartTimer(logging.CategoryRegistry, "Registry.Load")
	defer timer.Stop()

	list, err := r.store.ListAssessmentTypes(ctx, true)
	if err != nil {
		return fmt.Errorf("failed to load assessment types: %w", err)
	}

	byKey := make(map[string]types.AssessmentType, len(list))
	templates := make(map[string]*template.Template, len(list))
	for _, t := range list {
		byKey[t.Key] = t
		tmpl, err := CompileTemplate(t)
		if err != nil {
			logging.RegistryWarn("Assessment type %s has an invalid prompt template: %v", t.Key, err)
			continue
		}
		if tmpl != nil {
			templates[t.Key] = tmpl
		}
	}

	r.mu.Lock()
	r.byKey = byKey
	r.templates = templates
	r.loaded = true
	r.mu.Unlock()

	logging.Registry("Loaded %d active assessment types", len(byKey))
	return nil
}

// Reload refreshes the cache from the store.
func (r *Registry) Reload(ctx context.Context) error {
	return r.Load(ctx)
}

// ensureLoaded loads the cache on first use.
func (r *Registry) ensureLoaded(ctx context.Context) error {
	r.mu.RLock()
	loaded := r.loaded
	r.mu.RUnlock()
	if loaded {
		return nil
	}
	return r.Load(ctx)
}

// Types returns the cached definitions sorted by key.
func (r *Registry) Types() []types.AssessmentType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.AssessmentType, 0, len(r.byKey))
	for _, t := range r.byKey {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Get returns the cached definition for key.
func (r *Registry) Get(key string) (types.AssessmentType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byKey[key]
	return t, ok
}

// Template returns the compiled prompt template for key, or nil.
func (r *Registry) Template(key string) *template.Template {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.templates[key]
}

// Register validates and upserts one definition, then refreshes the cache.
func (r *Registry) Register(ctx context.Context, t types.AssessmentType) error {
	if err := Validate(t); err != nil {
		return err
	}
	if err := r.store.UpsertAssessmentType(ctx, &t); err != nil {
		return err
	}
	logging.Registry("Registered assessment type %s (%s)", t.Key, t.Source)
	return r.Reload(ctx)
}

// Validate checks a definition before it is stored.
func Validate(t types.AssessmentType) error {
	if strings.TrimSpace(t.Key) == "" {
		return fmt.Errorf("assessment type key is required")
	}
	if !validCategories[t.Category] {
		return fmt.Errorf("assessment type %s: unknown category %q", t.Key, t.Category)
	}
	if strings.TrimSpace(t.Source) == "" {
		return fmt.Errorf("assessment type %s: source is required", t.Key)
	}
	if t.Weight < 0 {
		return fmt.Errorf("assessment type %s: weight must not be negative", t.Key)
	}
	if t.MaxAgeDays < 0 {
		return fmt.Errorf("assessment type %s: max_age_days must not be negative", t.Key)
	}
	if _, err := CompileTemplate(t); err != nil {
		return fmt.Errorf("assessment type %s: %w", t.Key, err)
	}
	return nil
}

// DefaultTypes returns the built-in definitions.
func DefaultTypes() ([]types.AssessmentType, error) {
	var defs []types.AssessmentType
	if err := yaml.Unmarshal(defaultsYAML, &defs); err != nil {
		return nil, fmt.Errorf("failed to parse default assessment types: %w", err)
	}
	return defs, nil
}

// Seed installs the default definitions when the store has none. It returns
// the number of definitions written.
func Seed(ctx context.Context, store Store) (int, error) {
	n, err := store.CountAssessmentTypes(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logging.RegistryDebug("Seed skipped: %d assessment types already present", n)
		return 0, nil
	}

	defs, err := DefaultTypes()
	if err != nil {
		return 0, err
	}
	for i := range defs {
		if err := Validate(defs[i]); err != nil {
			return 0, err
		}
		if err := store.UpsertAssessmentType(ctx, &defs[i]); err != nil {
			return 0, err
		}
	}
	logging.Registry("Seeded %d default assessment types", len(defs))
	return len(defs), nil
}
