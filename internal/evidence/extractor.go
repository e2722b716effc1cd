// Package evidence turns raw page fetches into liquidity observations.
package evidence

import (
	"bytes"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/liquidity-monitor/internal/monitor"
)

// DefaultMarker is the phrase the liquidity page shows while deposits are capped.
const DefaultMarker = "Liquidity Currently Capped"

// Config tunes the extractor. Thresholds are the fraction of indicators that
// must hit for a method to report CAPPED.
type Config struct {
	MarkerText        string
	HTTPThreshold     float64
	RenderedThreshold float64
	SnippetBytes      int
}

// Extractor implements monitor.Extractor.
type Extractor struct {
	cfg    Config
	hasher monitor.Hasher
	shell  *ShellDetector
}

// New builds an Extractor, filling zero values with defaults.
func New(cfg Config, hasher monitor.Hasher) *Extractor {
	if cfg.MarkerText == "" {
		cfg.MarkerText = DefaultMarker
	}
	if cfg.HTTPThreshold <= 0 {
		cfg.HTTPThreshold = 0.5
	}
	if cfg.RenderedThreshold <= 0 {
		cfg.RenderedThreshold = 0.75
	}
	if cfg.SnippetBytes <= 0 {
		cfg.SnippetBytes = 1000
	}
	return &Extractor{cfg: cfg, hasher: hasher, shell: NewShellDetector(0)}
}

// Extract evaluates the indicator set for method against resp. It is a pure
// function of its inputs; content that cannot be evaluated yields UNKNOWN.
func (e *Extractor) Extract(method monitor.Method, resp monitor.FetchResponse, at time.Time) monitor.Observation {
	obs := monitor.Observation{
		Method:     method,
		Timestamp:  at,
		RawSnippet: Snippet(resp.Body, e.cfg.SnippetBytes),
		Verdict:    monitor.VerdictUnknown,
		Source:     resp.Body,
		Screenshot: resp.Screenshot,
	}
	if e.hasher != nil {
		if digest, err := e.hasher.Hash(resp.Body); err == nil {
			obs.ContentHash = digest
		}
	}

	if len(bytes.TrimSpace(resp.Body)) == 0 {
		obs.Error = (&monitor.ParseError{Method: method, Reason: "empty body"}).Error()
		return obs
	}

	var (
		results   []monitor.IndicatorResult
		threshold float64
	)
	switch method {
	case monitor.MethodRendered:
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
		if err != nil {
			obs.Error = (&monitor.ParseError{Method: method, Reason: err.Error()}).Error()
			return obs
		}
		if doc.Find("body").Length() == 0 {
			obs.Error = (&monitor.ParseError{Method: method, Reason: "no document body"}).Error()
			return obs
		}
		results = renderedIndicators(doc, e.cfg.MarkerText)
		threshold = e.cfg.RenderedThreshold
	default:
		results = httpIndicators(resp.Body, e.cfg.MarkerText)
		threshold = e.cfg.HTTPThreshold
		// Without the marker, an unhydrated shell says nothing about the page.
		if !results[0].Hit && e.shell.IsShell(resp.Body) {
			obs.Error = (&monitor.ParseError{Method: method, Reason: "unrendered application shell"}).Error()
			return obs
		}
	}

	hits := 0
	for _, r := range results {
		if r.Hit {
			hits++
		}
	}
	obs.Indicators = results
	obs.IndicatorHits = hits
	obs.IndicatorTotal = len(results)
	obs.Verdict = Decide(hits, len(results), threshold)
	return obs
}

// Decide applies the majority rule: CAPPED when hits/total >= threshold.
func Decide(hits, total int, threshold float64) monitor.Verdict {
	if total <= 0 {
		return monitor.VerdictUnknown
	}
	if float64(hits) >= threshold*float64(total) {
		return monitor.VerdictCapped
	}
	return monitor.VerdictAvailable
}

// Failed builds the observation recorded for a method whose fetch errored.
func Failed(method monitor.Method, at time.Time, err error) monitor.Observation {
	obs := monitor.Observation{
		Method:    method,
		Timestamp: at,
		Verdict:   monitor.VerdictUnknown,
	}
	if err != nil {
		obs.Error = err.Error()
	}
	return obs
}

// Snippet returns at most limit bytes of body without splitting a rune.
func Snippet(body []byte, limit int) string {
	if len(body) <= limit {
		return string(body)
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return string(body[:cut])
}

type substringIndicator struct {
	name     string
	patterns []string
}

var httpStyleIndicators = []substringIndicator{
	{name: "cursor_not_allowed", patterns: []string{"cursor-not-allowed"}},
	{name: "disabled_attribute", patterns: []string{`disabled=""`, `disabled="disabled"`}},
	{name: "disabled_background", patterns: []string{"bg-[#636363]"}},
	{name: "disabled_text_color", patterns: []string{"text-[#a0a0a0]"}},
	{name: "reduced_opacity", patterns: []string{"opacity-50"}},
	{name: "aria_disabled", patterns: []string{`aria-disabled="true"`}},
	{name: "pointer_events_none", patterns: []string{"pointer-events-none"}},
}

// httpIndicators runs the ordered substring checks. The marker is always first.
func httpIndicators(body []byte, marker string) []monitor.IndicatorResult {
	page := string(body)
	results := make([]monitor.IndicatorResult, 0, len(httpStyleIndicators)+1)
	results = append(results, monitor.IndicatorResult{Name: "marker_text", Hit: strings.Contains(page, marker)})
	for _, ind := range httpStyleIndicators {
		hit := false
		for _, p := range ind.patterns {
			if strings.Contains(page, p) {
				hit = true
				break
			}
		}
		results = append(results, monitor.IndicatorResult{Name: ind.name, Hit: hit})
	}
	return results
}

// renderedIndicators inspects the hydrated DOM.
func renderedIndicators(doc *goquery.Document, marker string) []monitor.IndicatorResult {
	buttons := doc.Find("button")

	disabledMarkerButton := false
	disabledStyledButton := false
	buttons.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !isDisabled(s) {
			return true
		}
		disabledStyledButton = true
		if strings.Contains(s.Text(), marker) {
			disabledMarkerButton = true
			return false
		}
		return true
	})

	bodyText := doc.Find("body").Text()
	return []monitor.IndicatorResult{
		{Name: "disabled_marker_button", Hit: disabledMarkerButton},
		{Name: "marker_text", Hit: strings.Contains(bodyText, marker)},
		{Name: "disabled_button_style", Hit: disabledStyledButton},
	}
}

func isDisabled(s *goquery.Selection) bool {
	if _, ok := s.Attr("disabled"); ok {
		return true
	}
	if v, _ := s.Attr("aria-disabled"); v == "true" {
		return true
	}
	return s.HasClass("cursor-not-allowed") || s.HasClass("opacity-50")
}
