package experiment

import (
	"fmt"
	"math"
	"testing"

	"github.com/notefolio/metagen/internal/prompt"
)

func titleTemplate(id string) *prompt.Template {
	return &prompt.Template{
		ID:                 id,
		Category:           "title",
		Version:            "v2",
		Language:           "ja",
		UserPromptTemplate: "{{articleText}}",
	}
}

func twoVariantExperiment(a, b float64) *Experiment {
	return &Experiment{
		ID:       "exp-titles",
		Category: "title",
		Active:   true,
		Variants: []Variant{
			{ID: "control", Prompt: titleTemplate("title-a"), TrafficPercentage: a, Active: true},
			{ID: "candidate", Prompt: titleTemplate("title-b"), TrafficPercentage: b, Active: true},
		},
	}
}

func TestCreateExperimentValidation(t *testing.T) {
	m := NewManager()

	if _, err := m.CreateExperiment(twoVariantExperiment(50, 50)); err != nil {
		t.Fatalf("valid experiment rejected: %v", err)
	}

	// Fewer than 2 variants.
	_, err := m.CreateExperiment(&Experiment{
		ID:       "single",
		Category: "title",
		Variants: []Variant{
			{ID: "only", Prompt: titleTemplate("t"), TrafficPercentage: 100, Active: true},
		},
	})
	if err == nil {
		t.Error("single-variant experiment accepted")
	}

	// Traffic does not sum to 100.
	exp := twoVariantExperiment(50, 40)
	exp.ID = "short-traffic"
	if _, err := m.CreateExperiment(exp); err == nil {
		t.Error("traffic sum 90 accepted")
	}

	// Category mismatch.
	exp = twoVariantExperiment(50, 50)
	exp.ID = "mismatch"
	exp.Category = "seo"
	if _, err := m.CreateExperiment(exp); err == nil {
		t.Error("variant category mismatch accepted")
	}
}

func TestCreateExperimentTolerance(t *testing.T) {
	m := NewManager()
	exp := twoVariantExperiment(50.005, 49.999)
	if _, err := m.CreateExperiment(exp); err != nil {
		t.Errorf("sum within epsilon rejected: %v", err)
	}
}

func TestSelectVariantDeterministic(t *testing.T) {
	m := NewManager()
	if _, err := m.CreateExperiment(twoVariantExperiment(50, 50)); err != nil {
		t.Fatalf("CreateExperiment: %v", err)
	}

	first, err := m.SelectVariant("exp-titles", "user-42")
	if err != nil {
		t.Fatalf("SelectVariant: %v", err)
	}
	for i := 0; i < 50; i++ {
		v, err := m.SelectVariant("exp-titles", "user-42")
		if err != nil {
			t.Fatalf("SelectVariant: %v", err)
		}
		if v.ID != first.ID {
			t.Fatal("same user flipped variants across calls")
		}
	}
}

func TestSelectVariantTrafficConvergence(t *testing.T) {
	m := NewManager()
	if _, err := m.CreateExperiment(twoVariantExperiment(50, 50)); err != nil {
		t.Fatalf("CreateExperiment: %v", err)
	}

	const n = 100000
	counts := make(map[string]int)
	for i := 0; i < n; i++ {
		v, err := m.SelectVariant("exp-titles", fmt.Sprintf("user-%d", i))
		if err != nil {
			t.Fatalf("SelectVariant: %v", err)
		}
		counts[v.ID]++
	}

	share := float64(counts["control"]) / n
	if math.Abs(share-0.5) > 0.05 {
		t.Errorf("control share = %.3f, want roughly 0.5", share)
	}
}

func TestSelectVariantInactive(t *testing.T) {
	m := NewManager()
	exp := twoVariantExperiment(50, 50)
	exp.Active = false
	if _, err := m.CreateExperiment(exp); err != nil {
		t.Fatalf("CreateExperiment: %v", err)
	}

	if _, err := m.SelectVariant("exp-titles", "u"); err == nil {
		t.Fatal("inactive experiment served a variant")
	}
}

func TestSelectVariantNoActiveVariants(t *testing.T) {
	m := NewManager()
	exp := twoVariantExperiment(50, 50)
	exp.Variants[0].Active = false
	exp.Variants[1].Active = false
	if _, err := m.CreateExperiment(exp); err != nil {
		t.Fatalf("CreateExperiment: %v", err)
	}

	if _, err := m.SelectVariant("exp-titles", "u"); err == nil {
		t.Fatal("experiment with no active variants served a variant")
	}
}

func TestUpdateTraffic(t *testing.T) {
	m := NewManager()
	if _, err := m.CreateExperiment(twoVariantExperiment(50, 50)); err != nil {
		t.Fatalf("CreateExperiment: %v", err)
	}

	if err := m.UpdateTraffic("exp-titles", map[string]float64{"control": 80, "candidate": 20}); err != nil {
		t.Fatalf("UpdateTraffic: %v", err)
	}
	exp, err := m.Get("exp-titles")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if exp.Variants[0].TrafficPercentage != 80 {
		t.Errorf("control traffic = %v, want 80", exp.Variants[0].TrafficPercentage)
	}

	// Invalid updates leave the experiment untouched.
	if err := m.UpdateTraffic("exp-titles", map[string]float64{"control": 90}); err == nil {
		t.Fatal("sum 110 accepted")
	}
	exp, _ = m.Get("exp-titles")
	if exp.Variants[0].TrafficPercentage != 80 {
		t.Error("failed update mutated the experiment")
	}

	if err := m.UpdateTraffic("exp-titles", map[string]float64{"ghost": 100}); err == nil {
		t.Fatal("unknown variant accepted")
	}
}

func TestActiveForCategory(t *testing.T) {
	m := NewManager()
	if _, err := m.CreateExperiment(twoVariantExperiment(50, 50)); err != nil {
		t.Fatalf("CreateExperiment: %v", err)
	}

	if exp := m.ActiveForCategory("title"); exp == nil || exp.ID != "exp-titles" {
		t.Errorf("ActiveForCategory(title) = %v", exp)
	}
	if exp := m.ActiveForCategory("seo"); exp != nil {
		t.Errorf("ActiveForCategory(seo) = %v, want nil", exp)
	}

	if err := m.SetActive("exp-titles", false); err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	if exp := m.ActiveForCategory("title"); exp != nil {
		t.Error("deactivated experiment still reported active")
	}
}
