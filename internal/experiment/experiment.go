// Package experiment implements A/B prompt experiments with
// deterministic, session-consistent traffic splitting.
package experiment

import (
	"fmt"
	"math"
	"sync"

	"github.com/google/uuid"

	"github.com/notefolio/metagen/internal/prompt"
)

// trafficEpsilon is the tolerance for the sum-to-100 check on variant
// traffic percentages.
const trafficEpsilon = 0.01

// Variant binds a prompt template to a share of experiment traffic.
type Variant struct {
	ID                string           `json:"id"`
	Prompt            *prompt.Template `json:"prompt"`
	TrafficPercentage float64          `json:"traffic_percentage"`
	Active            bool             `json:"active"`
}

// Experiment is a set of competing prompt variants for one category.
type Experiment struct {
	ID       string    `json:"id"`
	Category string    `json:"category"`
	Variants []Variant `json:"variants"`
	Active   bool      `json:"active"`
}

// Manager owns the experiment table. Safe for concurrent use.
type Manager struct {
	mu          sync.RWMutex
	experiments map[string]*Experiment
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	return &Manager{experiments: make(map[string]*Experiment)}
}

// CreateExperiment validates and registers an experiment. The experiment
// must have at least two variants, traffic percentages over all variants
// summing to 100, and every variant prompt in the experiment's category.
// An empty ID is assigned a fresh UUID.
func (m *Manager) CreateExperiment(exp *Experiment) (*Experiment, error) {
	if exp.ID == "" {
		exp.ID = uuid.NewString()
	}
	if err := validate(exp); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.experiments[exp.ID]; exists {
		return nil, fmt.Errorf("experiment: %q already exists", exp.ID)
	}
	m.experiments[exp.ID] = exp
	return exp, nil
}

func validate(exp *Experiment) error {
	if exp.Category == "" {
		return fmt.Errorf("experiment %q: category is required", exp.ID)
	}
	if len(exp.Variants) < 2 {
		return fmt.Errorf("experiment %q: needs at least 2 variants, got %d", exp.ID, len(exp.Variants))
	}

	var sum float64
	for i, v := range exp.Variants {
		if v.ID == "" {
			return fmt.Errorf("experiment %q: variant %d has no ID", exp.ID, i)
		}
		if v.Prompt == nil {
			return fmt.Errorf("experiment %q: variant %q has no prompt", exp.ID, v.ID)
		}
		if v.Prompt.Category != exp.Category {
			return fmt.Errorf("experiment %q: variant %q prompt category %q does not match experiment category %q",
				exp.ID, v.ID, v.Prompt.Category, exp.Category)
		}
		if v.TrafficPercentage < 0 {
			return fmt.Errorf("experiment %q: variant %q has negative traffic", exp.ID, v.ID)
		}
		sum += v.TrafficPercentage
	}
	// The sum is checked over all variants, active or not.
	if math.Abs(sum-100) > trafficEpsilon {
		return fmt.Errorf("experiment %q: traffic percentages sum to %.2f, want 100", exp.ID, sum)
	}
	return nil
}

// Get returns an experiment by ID.
func (m *Manager) Get(id string) (*Experiment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	exp, ok := m.experiments[id]
	if !ok {
		return nil, fmt.Errorf("experiment: %q not found", id)
	}
	return exp, nil
}

// ActiveForCategory returns the first active experiment in a category,
// or nil when none is running.
func (m *Manager) ActiveForCategory(category string) *Experiment {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, exp := range m.experiments {
		if exp.Active && exp.Category == category {
			return exp
		}
	}
	return nil
}

// SelectVariant deterministically assigns a user to a variant. The
// assignment hashes userID+experimentID into [0,100) and walks
// cumulative traffic buckets over the active variants only, so a given
// user always lands on the same variant for the life of the experiment.
func (m *Manager) SelectVariant(experimentID, userID string) (*Variant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	exp, ok := m.experiments[experimentID]
	if !ok {
		return nil, fmt.Errorf("experiment: %q not found", experimentID)
	}
	if !exp.Active {
		return nil, fmt.Errorf("experiment: %q is not active", experimentID)
	}

	var active []*Variant
	for i := range exp.Variants {
		if exp.Variants[i].Active {
			active = append(active, &exp.Variants[i])
		}
	}
	if len(active) == 0 {
		return nil, fmt.Errorf("experiment: %q has no active variants", experimentID)
	}

	bucket := float64(hashString(userID+experimentID) % 100)
	var cumulative float64
	for _, v := range active {
		cumulative += v.TrafficPercentage
		if bucket < cumulative {
			return v, nil
		}
	}
	// Rounding can leave the last bucket short of 100; the final active
	// variant absorbs the remainder.
	return active[len(active)-1], nil
}

// UpdateTraffic replaces the traffic percentages of an experiment's
// variants and re-validates the sum-to-100 invariant before committing.
func (m *Manager) UpdateTraffic(experimentID string, traffic map[string]float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	exp, ok := m.experiments[experimentID]
	if !ok {
		return fmt.Errorf("experiment: %q not found", experimentID)
	}

	updated := *exp
	updated.Variants = make([]Variant, len(exp.Variants))
	copy(updated.Variants, exp.Variants)
	for i := range updated.Variants {
		if pct, ok := traffic[updated.Variants[i].ID]; ok {
			updated.Variants[i].TrafficPercentage = pct
		}
	}
	for id := range traffic {
		if !hasVariant(&updated, id) {
			return fmt.Errorf("experiment %q: unknown variant %q", experimentID, id)
		}
	}
	if err := validate(&updated); err != nil {
		return err
	}

	m.experiments[experimentID] = &updated
	return nil
}

// SetActive toggles an experiment on or off.
func (m *Manager) SetActive(experimentID string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.experiments[experimentID]
	if !ok {
		return fmt.Errorf("experiment: %q not found", experimentID)
	}
	exp.Active = active
	return nil
}

func hasVariant(exp *Experiment, id string) bool {
	for _, v := range exp.Variants {
		if v.ID == id {
			return true
		}
	}
	return false
}

// hashString is a polynomial string hash. It spreads user IDs across
// traffic buckets; it is not cryptographic.
func hashString(s string) uint32 {
	var h uint32
	for _, c := range s {
		h = h*31 + uint32(c)
	}
	return h
}
