package processor

import (
	"strings"

	"golang.org/x/net/html"
)

// skippedElements are HTML elements whose text content is never part of
// the readable page.
var skippedElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"head":     true,
}

// blockElements get a newline boundary so extracted text keeps paragraph
// structure instead of running together.
var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"article": true, "section": true, "blockquote": true, "pre": true,
}

// htmlToText extracts normalized readable text from an HTML document:
// script/style subtrees are dropped, block boundaries become newlines,
// and runs of whitespace collapse to single spaces.
func htmlToText(source []byte) string {
	tokenizer := html.NewTokenizer(strings.NewReader(string(source)))

	var b strings.Builder
	skipDepth := 0

	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return normalizeWhitespace(b.String())

		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			tag := string(name)
			if skippedElements[tag] {
				skipDepth++
			}
			if blockElements[tag] {
				b.WriteByte('\n')
			}

		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			tag := string(name)
			if skippedElements[tag] && skipDepth > 0 {
				skipDepth--
			}
			if blockElements[tag] {
				b.WriteByte('\n')
			}

		case html.SelfClosingTagToken:
			name, _ := tokenizer.TagName()
			if blockElements[string(name)] {
				b.WriteByte('\n')
			}

		case html.TextToken:
			if skipDepth == 0 {
				b.Write(tokenizer.Text())
			}
		}
	}
}

// normalizeWhitespace collapses horizontal whitespace runs and trims
// blank lines, keeping at most single newlines between paragraphs.
func normalizeWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))

	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		out = append(out, strings.Join(fields, " "))
	}

	return strings.Join(out, "\n")
}
