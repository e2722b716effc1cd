package evidence

import (
	"bytes"
	"strings"
)

// ShellDetector recognises client-rendered pages whose server response is
// little more than script tags, so the HTTP check has nothing to inspect.
type ShellDetector struct {
	BodyLengthThreshold int
}

// NewShellDetector creates a new detector.
func NewShellDetector(threshold int) *ShellDetector {
	if threshold == 0 {
		threshold = 2048
	}
	return &ShellDetector{BodyLengthThreshold: threshold}
}

// IsShell reports whether body looks like an unhydrated application shell.
func (d *ShellDetector) IsShell(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return true
	}
	return len(trimmed) < d.BodyLengthThreshold && scriptDensityHigh(trimmed)
}

func scriptDensityHigh(body []byte) bool {
	lower := strings.ToLower(string(body))
	total := len(lower)
	if total == 0 {
		return false
	}

	const (
		openTag  = "<script"
		closeTag = "</script>"
	)
	scriptCoverage := 0
	searchPos := 0

	for {
		relativeStart := strings.Index(lower[searchPos:], openTag)
		if relativeStart == -1 {
			break
		}
		start := searchPos + relativeStart

		tagClose := strings.IndexByte(lower[start:], '>')
		if tagClose == -1 {
			scriptCoverage += total - start
			break
		}
		contentStart := start + tagClose + 1

		var nextSearch int
		if relativeEnd := strings.Index(lower[contentStart:], closeTag); relativeEnd == -1 {
			nextSearch = total
		} else {
			nextSearch = contentStart + relativeEnd + len(closeTag)
		}

		scriptCoverage += nextSearch - start
		searchPos = nextSearch
	}

	return scriptCoverage*100/total >= 25
}
