package markdown

import (
	"bytes"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	goldmarkhtml "github.com/yuin/goldmark/renderer/html"
)

var (
	md = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(
			goldmarkhtml.WithHardWraps(),
		),
	)
	ugc    = bluemonday.UGCPolicy()
	strict = bluemonday.StrictPolicy()
)

func init() {
	ugc.AddTargetBlankToFullyQualifiedLinks(true)
	ugc.RequireNoReferrerOnLinks(true)
}

// Render converts comment markdown to sanitized HTML.
func Render(source string) string {
	var buf bytes.Buffer
	if err := md.Convert([]byte(source), &buf); err != nil {
		return ugc.Sanitize(source)
	}
	return string(ugc.SanitizeBytes(buf.Bytes()))
}

// Sanitize strips every tag from user input, keeping its text. The result
// stays entity-escaped, so encoded markup in the input never turns back into
// a tag.
func Sanitize(input string) string {
	return strings.TrimSpace(strict.Sanitize(input))
}

// PlainText flattens markup into a single line of decoded text for indexing.
// Its output must never be persisted as content.
func PlainText(input string) string {
	input = strings.ReplaceAll(input, "</p>", " ")
	input = strings.ReplaceAll(input, "<br>", " ")
	input = strings.ReplaceAll(input, "</div>", " ")
	return strings.Join(strings.Fields(html.UnescapeString(Sanitize(input))), " ")
}
