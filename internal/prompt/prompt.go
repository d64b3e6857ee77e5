// Package prompt holds the versioned, language-selectable catalogue of
// prompt templates used by the analysis endpoints.
package prompt

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Metadata carries authorship and measurement fields for a template.
// Performance is updated by external measurement feedback; everything
// else is fixed at registration.
type Metadata struct {
	Author      string             `json:"author"`
	Tags        []string           `json:"tags,omitempty"`
	Performance map[string]float64 `json:"performance,omitempty"`
}

// Template is a registered prompt. Identity is ID; templates are
// immutable once registered apart from Metadata.Performance.
type Template struct {
	ID                 string   `json:"id"`
	Category           string   `json:"category"`
	Version            string   `json:"version"`
	Language           string   `json:"language"`
	SystemPrompt       string   `json:"system_prompt"`
	UserPromptTemplate string   `json:"user_prompt_template"`
	Variables          []string `json:"variables,omitempty"`
	OutputFormat       string   `json:"output_format,omitempty"`
	Caching            bool     `json:"caching,omitempty"`
	MaxTokens          int      `json:"max_tokens"`
	Temperature        float64  `json:"temperature"`
	Metadata           Metadata `json:"metadata"`
}

// Render substitutes {{variable}} placeholders in the user prompt.
func (t *Template) Render(vars map[string]string) string {
	out := t.UserPromptTemplate
	for k, v := range vars {
		out = strings.ReplaceAll(out, "{{"+k+"}}", v)
	}
	return out
}

// GetOptions narrow a registry lookup. Zero values fall back to the
// registry defaults.
type GetOptions struct {
	Version  string
	Language string
}

// Registry is the in-process template catalogue. Constructed once at
// startup and injected where needed; safe for concurrent readers.
type Registry struct {
	mu              sync.RWMutex
	templates       map[string]*Template
	defaultVersion  string
	defaultLanguage string
}

// NewRegistry creates a Registry with the built-in catalogue loaded for
// the given profile.
func NewRegistry(profile, defaultVersion, defaultLanguage string) *Registry {
	r := &Registry{
		templates:       make(map[string]*Template),
		defaultVersion:  defaultVersion,
		defaultLanguage: defaultLanguage,
	}
	r.loadBuiltins(profile)
	return r
}

// Register stores a template by ID. A duplicate ID silently overwrites
// the previous registration; use RegisterStrict to reject conflicts.
func (r *Registry) Register(t *Template) error {
	if err := validateTemplate(t); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[t.ID] = t
	return nil
}

// RegisterStrict stores a template by ID, failing if the ID is taken.
func (r *Registry) RegisterStrict(t *Template) error {
	if err := validateTemplate(t); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.templates[t.ID]; exists {
		return fmt.Errorf("prompt: template %q already registered", t.ID)
	}
	r.templates[t.ID] = t
	return nil
}

func validateTemplate(t *Template) error {
	if t.ID == "" {
		return fmt.Errorf("prompt: template ID is required")
	}
	if t.Category == "" {
		return fmt.Errorf("prompt: template %q has no category", t.ID)
	}
	if t.SystemPrompt == "" && t.UserPromptTemplate == "" {
		return fmt.Errorf("prompt: template %q has no prompt content", t.ID)
	}
	return nil
}

// Get resolves a template for a category. It first tries the exact
// (category, version, language) combination, then falls back to the
// category default (default version and language), and errors only when
// no default exists either.
func (r *Registry) Get(category string, opts GetOptions) (*Template, error) {
	version := opts.Version
	if version == "" {
		version = r.defaultVersion
	}
	language := opts.Language
	if language == "" {
		language = r.defaultLanguage
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if t := r.find(category, version, language); t != nil {
		return t, nil
	}
	if t := r.find(category, r.defaultVersion, r.defaultLanguage); t != nil {
		return t, nil
	}
	return nil, fmt.Errorf("prompt: no template for category %q (version %q, language %q) and no default", category, version, language)
}

// find must be called with the read lock held.
func (r *Registry) find(category, version, language string) *Template {
	for _, t := range r.templates {
		if t.Category == category && t.Version == version && t.Language == language {
			return t
		}
	}
	return nil
}

// GetByID looks up a template by its identity.
func (r *Registry) GetByID(id string) (*Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[id]
	if !ok {
		return nil, fmt.Errorf("prompt: template %q not found", id)
	}
	return t, nil
}

// ListByCategory returns all templates in a category, sorted by ID.
func (r *Registry) ListByCategory(category string) []*Template {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Template
	for _, t := range r.templates {
		if t.Category == category {
			out = append(out, t)
		}
	}
	sortByID(out)
	return out
}

// ListByVersion returns all templates at a version, sorted by ID.
func (r *Registry) ListByVersion(version string) []*Template {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Template
	for _, t := range r.templates {
		if t.Version == version {
			out = append(out, t)
		}
	}
	sortByID(out)
	return out
}

// SearchByTag returns all templates carrying the tag, sorted by ID.
func (r *Registry) SearchByTag(tag string) []*Template {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Template
	for _, t := range r.templates {
		for _, tg := range t.Metadata.Tags {
			if tg == tag {
				out = append(out, t)
				break
			}
		}
	}
	sortByID(out)
	return out
}

// Len returns the number of registered templates.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.templates)
}

// Reload rebuilds the built-in catalogue for the profile and swaps it
// in under the write lock. Concurrent readers see either the previous
// catalogue or the new one, never a partial registry.
func (r *Registry) Reload(profile string) {
	fresh := make(map[string]*Template)
	for _, t := range catalogueFor(profile) {
		fresh[t.ID] = t
	}
	r.mu.Lock()
	r.templates = fresh
	r.mu.Unlock()
}

func sortByID(ts []*Template) {
	sort.Slice(ts, func(i, j int) bool { return ts[i].ID < ts[j].ID })
}
