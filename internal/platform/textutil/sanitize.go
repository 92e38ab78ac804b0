// Package textutil cleans free text that ends up persisted in order history.
package textutil

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var plainText = bluemonday.StrictPolicy()

// SanitizeText reduces value to a single line of plain text of at most maxRunes runes. Zero means no limit.
func SanitizeText(value string, maxRunes int) string {
	text := strings.Join(strings.Fields(html.UnescapeString(plainText.Sanitize(value))), " ")
	if maxRunes <= 0 {
		return text
	}
	for i := range text {
		if maxRunes == 0 {
			return strings.TrimSpace(text[:i])
		}
		maxRunes--
	}
	return text
}
