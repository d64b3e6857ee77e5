package prompt

import (
	"strings"
	"testing"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry("production", "v2", "ja")
}

func TestGetExactMatch(t *testing.T) {
	r := newTestRegistry(t)

	tpl, err := r.Get("title", GetOptions{Version: "v2", Language: "en"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if tpl.ID != "title-v2-en" {
		t.Errorf("ID = %q, want title-v2-en", tpl.ID)
	}
}

func TestGetDefaults(t *testing.T) {
	r := newTestRegistry(t)

	tpl, err := r.Get("hashtag", GetOptions{})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if tpl.Version != "v2" || tpl.Language != "ja" {
		t.Errorf("got %s/%s, want default v2/ja", tpl.Version, tpl.Language)
	}
}

func TestGetFallsBackToCategoryDefault(t *testing.T) {
	r := newTestRegistry(t)

	// v9 does not exist; resolution falls back to the default
	// version/language for the category.
	tpl, err := r.Get("title", GetOptions{Version: "v9", Language: "ja"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if tpl.ID != "title-v2-ja" {
		t.Errorf("fallback resolved %q, want title-v2-ja", tpl.ID)
	}
}

func TestGetUnknownCategory(t *testing.T) {
	r := newTestRegistry(t)

	if _, err := r.Get("translation", GetOptions{}); err == nil {
		t.Fatal("expected error for category with no default")
	}
}

func TestGetByID(t *testing.T) {
	r := newTestRegistry(t)

	tpl, err := r.GetByID("seo-v2-en")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if tpl.Category != "seo" {
		t.Errorf("category = %q", tpl.Category)
	}

	if _, err := r.GetByID("nope"); err == nil {
		t.Fatal("expected error for missing ID")
	}
}

func TestRegisterOverwrites(t *testing.T) {
	r := newTestRegistry(t)

	replacement := &Template{
		ID:                 "title-v2-ja",
		Category:           "title",
		Version:            "v2",
		Language:           "ja",
		UserPromptTemplate: "replaced",
	}
	if err := r.Register(replacement); err != nil {
		t.Fatalf("Register: %v", err)
	}

	tpl, err := r.GetByID("title-v2-ja")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if tpl.UserPromptTemplate != "replaced" {
		t.Error("duplicate registration did not overwrite")
	}
}

func TestRegisterStrictRejectsConflict(t *testing.T) {
	r := newTestRegistry(t)

	err := r.RegisterStrict(&Template{
		ID:                 "title-v2-ja",
		Category:           "title",
		UserPromptTemplate: "x",
	})
	if err == nil {
		t.Fatal("expected conflict error")
	}
}

func TestRegisterValidation(t *testing.T) {
	r := newTestRegistry(t)

	if err := r.Register(&Template{Category: "title", UserPromptTemplate: "x"}); err == nil {
		t.Error("template without ID accepted")
	}
	if err := r.Register(&Template{ID: "x", UserPromptTemplate: "x"}); err == nil {
		t.Error("template without category accepted")
	}
	if err := r.Register(&Template{ID: "x", Category: "title"}); err == nil {
		t.Error("template without prompt content accepted")
	}
}

func TestListAndSearch(t *testing.T) {
	r := newTestRegistry(t)

	byCat := r.ListByCategory("full")
	if len(byCat) != 3 {
		t.Errorf("ListByCategory(full) = %d templates, want 3", len(byCat))
	}
	for i := 1; i < len(byCat); i++ {
		if byCat[i-1].ID >= byCat[i].ID {
			t.Error("ListByCategory not sorted by ID")
		}
	}

	byVer := r.ListByVersion("v1")
	if len(byVer) != 1 || byVer[0].ID != "full-v1-ja" {
		t.Errorf("ListByVersion(v1) = %+v", byVer)
	}

	legacy := r.SearchByTag("legacy")
	if len(legacy) != 1 || legacy[0].ID != "full-v1-ja" {
		t.Errorf("SearchByTag(legacy) = %+v", legacy)
	}
}

func TestDevelopmentProfileLoadsDrafts(t *testing.T) {
	prod := NewRegistry("production", "v2", "ja")
	dev := NewRegistry("development", "v2", "ja")

	if dev.Len() <= prod.Len() {
		t.Error("development profile did not load draft templates")
	}
	if _, err := dev.GetByID("title-v3-ja"); err != nil {
		t.Errorf("draft template missing in development profile: %v", err)
	}
	if _, err := prod.GetByID("title-v3-ja"); err == nil {
		t.Error("draft template leaked into production profile")
	}
}

func TestReload(t *testing.T) {
	r := newTestRegistry(t)
	if err := r.Register(&Template{ID: "custom", Category: "title", UserPromptTemplate: "x"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	r.Reload("production")

	if _, err := r.GetByID("custom"); err == nil {
		t.Error("custom template survived Reload")
	}
	if _, err := r.GetByID("title-v2-ja"); err != nil {
		t.Errorf("builtin missing after Reload: %v", err)
	}
}

func TestReloadNeverEmptiesRegistry(t *testing.T) {
	r := newTestRegistry(t)

	done := make(chan struct{})
	sawEmpty := make(chan int, 1)
	go func() {
		defer close(done)
		for i := 0; i < 10000; i++ {
			if n := r.Len(); n == 0 {
				select {
				case sawEmpty <- n:
				default:
				}
				return
			}
		}
	}()

	for i := 0; i < 200; i++ {
		r.Reload("production")
	}
	<-done

	select {
	case <-sawEmpty:
		t.Error("reader observed an empty registry during Reload")
	default:
	}
}

func TestRender(t *testing.T) {
	tpl := &Template{UserPromptTemplate: "Analyze:\n{{articleText}}\n({{articleText}})"}
	got := tpl.Render(map[string]string{"articleText": "hello"})
	if got != "Analyze:\nhello\n(hello)" || strings.Contains(got, "{{") {
		t.Errorf("Render = %q", got)
	}
}
