package upload

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/contentflow/uploadflow/internal/browser"
)

var percentPattern = regexp.MustCompile(`(\d{1,3})\s*%`)

// ExtractProgress reads an upload percentage out of a progress indicator
// element, trying three strategies in order: the aria-valuenow attribute,
// a percentage embedded in the inner text, and a "complete" keyword that
// maps to 100. The boolean reports whether any strategy produced a value.
func ExtractProgress(ctx context.Context, el browser.Element) (int, bool) {
	if raw, err := el.Attribute(ctx, "aria-valuenow"); err == nil && raw != "" {
		if pct, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
			return clampPercent(pct), true
		}
	}

	text, err := el.Text(ctx)
	if err != nil {
		return 0, false
	}

	if match := percentPattern.FindStringSubmatch(text); match != nil {
		if pct, err := strconv.Atoi(match[1]); err == nil {
			return clampPercent(pct), true
		}
	}

	if strings.Contains(strings.ToLower(text), "complete") {
		return 100, true
	}

	return 0, false
}

func clampPercent(pct int) int {
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}
