package tokenbudget

// ProviderMaxOutputTokens is the hard ceiling the provider enforces on
// generated output for the models in use.
const ProviderMaxOutputTokens = 8192

// DefaultFloor is the minimum output budget granted to any request, so
// very short articles still get a usable allocation.
const DefaultFloor = 300

// endpointCeilings caps the output budget per endpoint. The full analysis
// endpoint produces several fields and needs significantly more room than
// the single-task endpoints.
var endpointCeilings = map[string]int{
	"analyze-article":      2000,
	"analyze-article-full": 4000,
	"hashtag":              500,
	"eyecatch":             1000,
	"title":                500,
	"seo":                  800,
}

// defaultCeiling applies to endpoints not present in endpointCeilings.
const defaultCeiling = 2000

// Allocator computes per-request output-token budgets. Fixed high budgets
// overpay for short inputs; scaling the budget with input size is the
// mechanism behind the measured output-cost savings.
type Allocator struct {
	floor   int
	maxCap  int
	ceiling map[string]int
}

// NewAllocator creates an Allocator with the given floor and provider cap.
// Non-positive arguments fall back to the package defaults.
func NewAllocator(floor, maxCap int) *Allocator {
	if floor <= 0 {
		floor = DefaultFloor
	}
	if maxCap <= 0 {
		maxCap = ProviderMaxOutputTokens
	}
	return &Allocator{
		floor:   floor,
		maxCap:  maxCap,
		ceiling: endpointCeilings,
	}
}

// MaxTokensFor computes the output-token budget for an article of the
// given character length on the given endpoint. The result is monotone in
// articleLen for a fixed endpoint, never zero or negative, and clamped to
// [floor, min(endpoint ceiling, provider max)].
func (a *Allocator) MaxTokensFor(articleLen int, endpoint string) int {
	if articleLen < 0 {
		articleLen = 0
	}

	ceiling, ok := a.ceiling[endpoint]
	if !ok {
		ceiling = defaultCeiling
	}
	if ceiling > a.maxCap {
		ceiling = a.maxCap
	}

	// Scale with input size: roughly one output token per eight input
	// characters on top of the floor. Short articles need less generated
	// content; long ones approach the endpoint ceiling.
	budget := a.floor + articleLen/8

	if budget < a.floor {
		budget = a.floor
	}
	if budget > ceiling {
		budget = ceiling
	}
	return budget
}

// Floor returns the configured minimum budget.
func (a *Allocator) Floor() int { return a.floor }

// CeilingFor returns the effective ceiling for an endpoint.
func (a *Allocator) CeilingFor(endpoint string) int {
	c, ok := a.ceiling[endpoint]
	if !ok {
		c = defaultCeiling
	}
	if c > a.maxCap {
		c = a.maxCap
	}
	return c
}
