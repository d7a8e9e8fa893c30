// Package content implements the transformation pipeline that turns raw,
// untrusted game HTML into a safely embeddable document.
//
// Rewriting is done on a parsed DOM, not with string splicing, so repeated
// transformation never double-inserts the viewport tag, layout styles, or
// communication bridge.
package content

import (
	"bytes"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/eduforge/gamehost/internal/infrastructure/logging"
	"github.com/eduforge/gamehost/internal/infrastructure/monitoring"
)

const (
	// Element IDs marking injected blocks; their presence makes a second
	// pass a no-op.
	layoutStyleID   = "gh-layout"
	bridgeScriptID  = "gh-bridge"
	defaultMinifyKB = 500
)

// Options tunes the transformation pipeline.
type Options struct {
	// CompactUI scales up interactive affordances for small screens.
	CompactUI bool
	// MinifyOverKB is the size threshold above which comments are stripped
	// and whitespace collapsed. Zero means the default (500 KB).
	MinifyOverKB int
}

// Transformer rewrites untrusted HTML into embeddable documents. Transform
// is pure and memoized on exact input equality; it never fails.
type Transformer struct {
	opts    Options
	log     *logging.Logger
	metrics *monitoring.Metrics
	cache   cacheMap
}

// cacheMap memoizes content hash -> transformed document.
type cacheMap struct {
	mu sync.RWMutex
	m  map[uint64]string
}

// New creates a transformer.
func New(opts Options, log *logging.Logger) *Transformer {
	if opts.MinifyOverKB <= 0 {
		opts.MinifyOverKB = defaultMinifyKB
	}
	return &Transformer{
		opts:  opts,
		log:   log.Named("transform"),
		cache: cacheMap{m: make(map[uint64]string)},
	}
}

// WithMetrics attaches metric counters to the transformer.
func (t *Transformer) WithMetrics(m *monitoring.Metrics) *Transformer {
	t.metrics = m
	return t
}

// Transform converts raw game HTML into an embeddable document. Missing or
// empty input yields the fallback document; any internal anomaly degrades
// to returning the input unchanged. Identical inputs hit the memo cache.
func (t *Transformer) Transform(raw string) (result string) {
	defer func() {
		if r := recover(); r != nil {
			t.log.Error("transform panic recovered", zap.Any("cause", r))
			result = raw
		}
	}()

	if strings.TrimSpace(raw) == "" {
		if t.metrics != nil {
			t.metrics.TransformFallbacks.Inc()
		}
		return FallbackDocument
	}

	key := xxhash.Sum64String(raw)
	t.cache.mu.RLock()
	cached, ok := t.cache.m[key]
	t.cache.mu.RUnlock()
	if ok {
		if t.metrics != nil {
			t.metrics.TransformCacheHits.Inc()
		}
		return cached
	}
	if t.metrics != nil {
		t.metrics.TransformCacheMisses.Inc()
	}

	out, err := t.rewrite(raw)
	if err != nil {
		t.log.Warn("transform degraded to passthrough", zap.Error(err))
		out = raw
	} else {
		t.log.Debug("content transformed",
			zap.Int("original_kb", len(raw)/1024),
			zap.Int("final_kb", len(out)/1024),
		)
	}

	t.cache.mu.Lock()
	t.cache.m[key] = out
	t.cache.mu.Unlock()
	return out
}

func (t *Transformer) rewrite(raw string) (string, error) {
	root, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return "", err
	}
	doc := goquery.NewDocumentFromNode(root)

	head := doc.Find("head").First()
	body := doc.Find("body").First()

	// 1. Viewport meta, zoom disabled, right after the head opens.
	if doc.Find(`meta[name="viewport"]`).Length() == 0 {
		head.PrependHtml(`<meta name="viewport" content="width=device-width, initial-scale=1.0, user-scalable=no">`)
	}

	// 2. Layout-forcing style block.
	if doc.Find("style#"+layoutStyleID).Length() == 0 {
		head.AppendHtml(t.layoutStyle())
	}

	// 3. Communication bridge, immediately before the body closes.
	if doc.Find("script#"+bridgeScriptID).Length() == 0 && !strings.Contains(raw, apiObjectName) {
		body.AppendHtml(bridgeScript())
	}

	// 4. Large payloads: drop comments and collapse whitespace. Semantics
	// are preserved because script/style/pre text is left untouched.
	if len(raw) > t.opts.MinifyOverKB*1024 {
		minify(root)
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, root); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// layoutStyle forces the document and container-like elements to fill the
// viewport. Compact mode additionally scales interactive affordances.
func (t *Transformer) layoutStyle() string {
	var sb strings.Builder
	sb.WriteString(`<style id="` + layoutStyleID + `">`)
	sb.WriteString(`html,body{width:100%;height:100%;margin:0;padding:0;overflow:hidden;}`)
	sb.WriteString(`#root,#app,#game,.game-container,.container,main,canvas{width:100%;height:100%;max-width:none;max-height:none;}`)
	sb.WriteString(`body{-webkit-user-select:none;user-select:none;}`)
	if t.opts.CompactUI {
		sb.WriteString(`button,.btn,.option{font-size:1.4em;padding:0.8em 1.2em;}`)
		sb.WriteString(`.score,.status,.hud{font-size:1.3em;}`)
	}
	sb.WriteString(`</style>`)
	return sb.String()
}

// minify removes comment nodes and collapses redundant whitespace in text
// nodes outside of script, style, pre, and textarea.
func minify(n *html.Node) {
	var walk func(n *html.Node, preserve bool)
	walk = func(n *html.Node, preserve bool) {
		for c := n.FirstChild; c != nil; {
			next := c.NextSibling
			switch c.Type {
			case html.CommentNode:
				n.RemoveChild(c)
			case html.TextNode:
				if !preserve {
					c.Data = collapseSpace(c.Data)
				}
			case html.ElementNode:
				walk(c, preserve || preservesWhitespace(c.Data))
			}
			c = next
		}
	}
	walk(n, false)
}

func preservesWhitespace(tag string) bool {
	switch tag {
	case "script", "style", "pre", "textarea":
		return true
	}
	return false
}

func collapseSpace(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	inSpace := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			if !inSpace {
				sb.WriteRune(' ')
				inSpace = true
			}
			continue
		}
		inSpace = false
		sb.WriteRune(r)
	}
	return sb.String()
}

// FallbackDocument is rendered when game content is missing or never
// arrives. It is already embeddable and needs no further transformation.
const FallbackDocument = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0, user-scalable=no">
<style>
html,body{width:100%;height:100%;margin:0;display:flex;align-items:center;justify-content:center;
font-family:system-ui,sans-serif;background:#111;color:#eee;}
.notice{text-align:center;max-width:28em;padding:2em;}
</style>
</head>
<body>
<div class="notice">
<h1>Game content unavailable</h1>
<p>The game could not be loaded. Close this view and try again.</p>
</div>
</body>
</html>`
