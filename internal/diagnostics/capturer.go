// Package diagnostics persists raw page content when fetch methods disagree.
package diagnostics

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"go.uber.org/zap"

	"github.com/JakeFAU/liquidity-monitor/internal/monitor"
)

// timestampLayout matches the file names the retention tooling expects.
const timestampLayout = "20060102_150405"

// pageTextLimit caps the markdown excerpt appended to the analysis report.
const pageTextLimit = 4000

// Capturer implements monitor.DebugCapturer on top of a blob store.
type Capturer struct {
	blobs       monitor.BlobStore
	prefix      string
	logger      *zap.Logger
	mdConverter *converter.Converter
}

// New builds a Capturer writing under prefix.
func New(blobs monitor.BlobStore, prefix string, logger *zap.Logger) *Capturer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Capturer{
		blobs:  blobs,
		prefix: strings.Trim(prefix, "/"),
		logger: logger,
		mdConverter: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

// ObjectPath returns the blob path for artifact.
func (c *Capturer) ObjectPath(artifact monitor.DebugArtifact) (string, string) {
	ts := artifact.Timestamp.UTC().Format(timestampLayout)
	var name, contentType string
	switch artifact.Kind {
	case monitor.ArtifactSource:
		name = fmt.Sprintf("debug_source_%s_%s.html", strings.ToLower(string(artifact.Method)), ts)
		contentType = "text/html; charset=utf-8"
	case monitor.ArtifactScreenshot:
		name = fmt.Sprintf("debug_screenshot_%s.png", ts)
		contentType = "image/png"
	default:
		name = fmt.Sprintf("debug_analysis_%s.txt", ts)
		contentType = "text/plain; charset=utf-8"
	}
	if c.prefix == "" {
		return name, contentType
	}
	return path.Join(c.prefix, name), contentType
}

// SaveDebugArtifact writes one artifact and returns its URI.
func (c *Capturer) SaveDebugArtifact(ctx context.Context, artifact monitor.DebugArtifact) (string, error) {
	p, contentType := c.ObjectPath(artifact)
	uri, err := c.blobs.PutObject(ctx, p, contentType, bytes.NewReader(artifact.Data))
	if err != nil {
		return "", fmt.Errorf("save %s artifact: %w", artifact.Kind, err)
	}
	return uri, nil
}

// CaptureDisagreement writes the analysis report, each method's page source
// and the rendered screenshot for result. Every artifact is attempted; the
// returned error joins the individual failures.
func (c *Capturer) CaptureDisagreement(ctx context.Context, result monitor.ConsensusResult) ([]string, error) {
	at := result.CycleTimestamp
	artifacts := []monitor.DebugArtifact{{
		Kind:      monitor.ArtifactAnalysis,
		Timestamp: at,
		Data:      []byte(Analysis(result) + c.pageText(result)),
	}}
	for _, obs := range result.Observations {
		if len(obs.Source) > 0 {
			artifacts = append(artifacts, monitor.DebugArtifact{
				Kind: monitor.ArtifactSource, Method: obs.Method, Timestamp: at, Data: obs.Source,
			})
		}
		if len(obs.Screenshot) > 0 {
			artifacts = append(artifacts, monitor.DebugArtifact{
				Kind: monitor.ArtifactScreenshot, Method: obs.Method, Timestamp: at, Data: obs.Screenshot,
			})
		}
	}

	var (
		uris []string
		errs []error
	)
	for _, a := range artifacts {
		uri, err := c.SaveDebugArtifact(ctx, a)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		uris = append(uris, uri)
	}
	c.logger.Info("disagreement diagnostics captured",
		zap.String("cycle_id", result.ID),
		zap.Strings("artifacts", uris),
		zap.Int("failed", len(errs)),
	)
	return uris, errors.Join(errs...)
}

// pageText renders each method's page source as markdown so the report can
// be read without opening the raw HTML.
func (c *Capturer) pageText(result monitor.ConsensusResult) string {
	var b strings.Builder
	for _, obs := range result.Observations {
		if len(obs.Source) == 0 {
			continue
		}
		md, err := c.mdConverter.ConvertString(string(obs.Source))
		if err != nil {
			c.logger.Debug("page text conversion failed", zap.String("method", string(obs.Method)), zap.Error(err))
			continue
		}
		md = strings.TrimSpace(md)
		if md == "" {
			continue
		}
		if len(md) > pageTextLimit {
			md = strings.ToValidUTF8(md[:pageTextLimit], "") + "\n..."
		}
		fmt.Fprintf(&b, "\n--- page text [%s] ---\n%s\n", obs.Method, md)
	}
	return b.String()
}

// Analysis renders a human-readable report of a cycle's observations.
func Analysis(result monitor.ConsensusResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "DEBUG ANALYSIS - %s\n", result.CycleTimestamp.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "cycle: %s\n", result.ID)
	fmt.Fprintf(&b, "consensus: %s (agreement=%t)\n", result.Verdict, result.Agreement)
	b.WriteString(strings.Repeat("=", 50))
	b.WriteString("\n")
	for _, obs := range result.Observations {
		fmt.Fprintf(&b, "\n[%s] verdict=%s hits=%d/%d\n", obs.Method, obs.Verdict, obs.IndicatorHits, obs.IndicatorTotal)
		if obs.Error != "" {
			fmt.Fprintf(&b, "  error: %s\n", obs.Error)
		}
		if obs.ContentHash != "" {
			fmt.Fprintf(&b, "  content_hash: %s\n", obs.ContentHash)
		}
		for _, ind := range obs.Indicators {
			mark := " "
			if ind.Hit {
				mark = "x"
			}
			fmt.Fprintf(&b, "  [%s] %s\n", mark, ind.Name)
		}
		if obs.RawSnippet != "" {
			fmt.Fprintf(&b, "  snippet:\n%s\n", obs.RawSnippet)
		}
	}
	return b.String()
}
