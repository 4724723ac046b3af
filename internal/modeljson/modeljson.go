// Package modeljson cleans up the almost-JSON that vision models reply with
// and decodes it.
package modeljson

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

var (
	reBlock    = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLine     = regexp.MustCompile(`(?m)^\s*//.*$`)
	reInline   = regexp.MustCompile(`(?m)\s//.*$`)
	reTrailing = regexp.MustCompile(`,(\s*[}\]])`)
)

// ErrNoJSON is returned when a reply contains no JSON object at all
var ErrNoJSON = errors.New("no JSON object in model reply")

// Sanitize removes code fences, comments and trailing commas, and keeps
// only the outermost {...} of raw
func Sanitize(raw string) string {
	raw = strings.TrimSpace(raw)

	// Strip triple-backtick fences if present
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.Trim(strings.TrimSpace(raw), "`")

	raw = reBlock.ReplaceAllString(raw, "")
	raw = reLine.ReplaceAllString(raw, "")
	raw = reInline.ReplaceAllString(raw, "")
	raw = reTrailing.ReplaceAllString(raw, "$1")

	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}

// Decode sanitizes raw and unmarshals it into v
func Decode(raw string, v any) error {
	clean := Sanitize(raw)
	if !strings.HasPrefix(clean, "{") {
		return errors.Wrapf(ErrNoJSON, "reply %q", truncate(raw, 80))
	}
	if err := json.Unmarshal([]byte(clean), v); err != nil {
		return errors.Wrap(err, "decode model reply")
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
