package content

import (
	"strings"
	"testing"

	"github.com/antchfx/htmlquery"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/eduforge/gamehost/internal/infrastructure/logging"
	"github.com/eduforge/gamehost/internal/infrastructure/monitoring"
)

func newTransformer(t *testing.T) *Transformer {
	t.Helper()
	return New(Options{}, logging.NewNop())
}

func TestTransformInjectsAllBlocks(t *testing.T) {
	tr := newTransformer(t)
	out := tr.Transform(`<html><head><title>g</title></head><body>hi</body></html>`)

	doc, err := htmlquery.Parse(strings.NewReader(out))
	if err != nil {
		t.Fatalf("output did not parse: %v", err)
	}

	if n := len(htmlquery.Find(doc, `//meta[@name="viewport"]`)); n != 1 {
		t.Errorf("viewport meta count = %d, want 1", n)
	}
	if n := len(htmlquery.Find(doc, `//style[@id="gh-layout"]`)); n != 1 {
		t.Errorf("layout style count = %d, want 1", n)
	}
	if n := len(htmlquery.Find(doc, `//script[@id="gh-bridge"]`)); n != 1 {
		t.Errorf("bridge script count = %d, want 1", n)
	}
	if n := strings.Count(out, "window.gameAPI"); n != 1 {
		t.Errorf("gameAPI occurrences = %d, want 1", n)
	}
}

func TestTransformIdempotentOnOwnOutput(t *testing.T) {
	tr := newTransformer(t)
	first := tr.Transform(`<html><body>hi</body></html>`)
	second := tr.Transform(first)

	doc, err := htmlquery.Parse(strings.NewReader(second))
	if err != nil {
		t.Fatalf("second pass did not parse: %v", err)
	}
	if n := len(htmlquery.Find(doc, `//meta[@name="viewport"]`)); n != 1 {
		t.Errorf("viewport count after second pass = %d, want 1", n)
	}
	if n := strings.Count(second, "window.gameAPI"); n != 1 {
		t.Errorf("gameAPI occurrences after second pass = %d, want 1", n)
	}
	if n := len(htmlquery.Find(doc, `//style[@id="gh-layout"]`)); n != 1 {
		t.Errorf("layout style count after second pass = %d, want 1", n)
	}
}

func TestTransformPreservesExistingViewport(t *testing.T) {
	tr := newTransformer(t)
	in := `<html><head><meta name="viewport" content="width=320"></head><body></body></html>`
	out := tr.Transform(in)

	doc, _ := htmlquery.Parse(strings.NewReader(out))
	metas := htmlquery.Find(doc, `//meta[@name="viewport"]`)
	if len(metas) != 1 {
		t.Fatalf("viewport count = %d, want 1", len(metas))
	}
	if got := htmlquery.SelectAttr(metas[0], "content"); got != "width=320" {
		t.Errorf("viewport content replaced: %q", got)
	}
}

func TestTransformFallbackOnEmptyInput(t *testing.T) {
	tr := newTransformer(t)
	for _, in := range []string{"", "   ", "\n\t"} {
		out := tr.Transform(in)
		if out != FallbackDocument {
			t.Errorf("Transform(%q) did not return fallback", in)
		}
	}
	if !strings.Contains(FallbackDocument, "unavailable") {
		t.Error("fallback document does not communicate unavailability")
	}
}

func TestTransformMemoized(t *testing.T) {
	m := monitoring.NewMetrics()
	tr := New(Options{}, logging.NewNop()).WithMetrics(m)

	in := `<html><body>cached</body></html>`
	first := tr.Transform(in)
	second := tr.Transform(in)

	if first != second {
		t.Error("repeated transform of identical input differs")
	}
	if hits := testutil.ToFloat64(m.TransformCacheHits); hits != 1 {
		t.Errorf("cache hits = %v, want 1", hits)
	}
	if misses := testutil.ToFloat64(m.TransformCacheMisses); misses != 1 {
		t.Errorf("cache misses = %v, want 1", misses)
	}
}

func TestTransformMinifiesLargeInput(t *testing.T) {
	tr := New(Options{MinifyOverKB: 1}, logging.NewNop())

	comment := "<!-- filler comment -->"
	var sb strings.Builder
	sb.WriteString("<html><body><p>keep    me</p>")
	for sb.Len() < 2*1024 {
		sb.WriteString(comment)
		sb.WriteString("\n\n\n")
	}
	sb.WriteString("</body></html>")

	out := tr.Transform(sb.String())
	if strings.Contains(out, "filler comment") {
		t.Error("comments survived minification")
	}
	if !strings.Contains(out, "keep me") {
		t.Error("text content damaged by whitespace collapse")
	}
}

func TestTransformCompactUIScalesAffordances(t *testing.T) {
	tr := New(Options{CompactUI: true}, logging.NewNop())
	out := tr.Transform(`<html><body><button>go</button></body></html>`)
	if !strings.Contains(out, "button,.btn,.option") {
		t.Error("compact mode did not scale interactive affordances")
	}
}

func TestTransformSurvivesHostileInput(t *testing.T) {
	tr := newTransformer(t)
	inputs := []string{
		"<html><body><div><div><div></body>",
		"plain text, no markup at all",
		"<<<>>><script>",
		strings.Repeat("<div>", 500),
	}
	for _, in := range inputs {
		out := tr.Transform(in)
		if out == "" {
			t.Errorf("Transform(%.20q...) returned empty output", in)
		}
	}
}

func TestSanitizerStripsScripts(t *testing.T) {
	s := NewSanitizer()
	out := s.Preview(`<div onclick="evil()"><script>evil()</script><button>play</button>ok</div>`)
	if strings.Contains(out, "script") || strings.Contains(out, "onclick") {
		t.Errorf("executable content survived preview sanitization: %s", out)
	}
	if !strings.Contains(out, "ok") {
		t.Errorf("benign content removed: %s", out)
	}
}
