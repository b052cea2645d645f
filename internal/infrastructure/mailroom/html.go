package mailroom

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
)

// EnsureHTML returns an email compliant HTML body. The model is instructed to
// produce HTML already; bodies that clearly are not (plain text or markdown)
// are rendered through goldmark and wrapped in a minimal envelope.
func EnsureHTML(body string) (string, error) {
	if looksLikeHTML(body) {
		return body, nil
	}

	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(body), &buf); err != nil {
		return "", fmt.Errorf("render body: %w", err)
	}

	html := fmt.Sprintf(`<!DOCTYPE html>
<html><head><meta charset="utf-8"></head>
<body style="font-family: sans-serif; font-size: 14px; line-height: 1.5;">
%s
</body></html>`, buf.String())

	return html, nil
}

func looksLikeHTML(body string) bool {
	trimmed := strings.TrimSpace(strings.ToLower(body))
	for _, prefix := range []string{"<!doctype", "<html", "<body", "<div", "<p", "<table"} {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	return false
}
