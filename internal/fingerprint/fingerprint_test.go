package fingerprint

import "testing"

func TestNormalize_CollapsesIntraLineWhitespace(t *testing.T) {
	got := Normalize("hello   world\tagain")
	want := "hello world again"
	if got != want {
		t.Errorf("Normalize = %q, want %q", got, want)
	}
}

func TestNormalize_TrimsAndPreservesParagraphBreaks(t *testing.T) {
	got := Normalize("  first paragraph  \n\n\n  second   paragraph  \n")
	want := "first paragraph\n\nsecond paragraph"
	if got != want {
		t.Errorf("Normalize = %q, want %q", got, want)
	}
}

func TestHash_DeterministicAcrossCosmeticDifferences(t *testing.T) {
	a := "Title here\n\nBody  text   with spaces."
	b := "  Title   here  \n\n\nBody text with spaces.\n"
	if Hash("analyze-article", a) != Hash("analyze-article", b) {
		t.Error("expected identical fingerprints for cosmetically different inputs")
	}
}

func TestHash_DifferentTextDifferentFingerprint(t *testing.T) {
	if Hash("analyze-article", "article one") == Hash("analyze-article", "article two") {
		t.Error("expected different fingerprints for different texts")
	}
}

func TestHash_EndpointIsPartOfKey(t *testing.T) {
	text := "same article body"
	if Hash("analyze-article", text) == Hash("analyze-article-full", text) {
		t.Error("expected different fingerprints for different endpoints")
	}
}

func TestHash_RepeatedCallsStable(t *testing.T) {
	text := "stable input"
	first := Hash("analyze-article", text)
	for i := 0; i < 10; i++ {
		if Hash("analyze-article", text) != first {
			t.Fatal("fingerprint changed across repeated calls")
		}
	}
}

func TestHashContent_KnownLength(t *testing.T) {
	h := HashContent("payload")
	if len(h) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(h))
	}
}
