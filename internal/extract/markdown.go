package extract

import (
	"context"
	"regexp"
	"strings"
)

var (
	frontMatter = regexp.MustCompile(`(?s)\A---\n.*?\n---\n`)
	fence       = regexp.MustCompile("(?m)^[ \t]*(```|~~~).*$")
	image       = regexp.MustCompile(`!\[([^\]]*)\]\([^)]*\)`)
	link        = regexp.MustCompile(`\[([^\]]+)\]\([^)]*\)`)
	heading     = regexp.MustCompile(`(?m)^#{1,6}[ \t]+`)
	emphasis    = regexp.MustCompile(`(\*\*|__)(\S(?:.*?\S)?)(\*\*|__)`)
	blockquote  = regexp.MustCompile(`(?m)^>[ \t]?`)
	rule        = regexp.MustCompile(`(?m)^[ \t]*([-*_][ \t]*){3,}$`)
	htmlComment = regexp.MustCompile(`(?s)<!--.*?-->`)
	blankRuns   = regexp.MustCompile(`\n{3,}`)
)

// Markdown strips markup that carries no meaning for retrieval while keeping
// paragraph structure, so the chunker can still split on blank lines. Code
// block contents are kept; only the fences go.
func Markdown(ctx context.Context, data []byte) (string, error) {
	text, err := PlainText(ctx, data)
	if err != nil {
		return "", err
	}
	text = frontMatter.ReplaceAllString(text, "")
	text = htmlComment.ReplaceAllString(text, "")
	text = fence.ReplaceAllString(text, "")
	text = image.ReplaceAllString(text, "$1")
	text = link.ReplaceAllString(text, "$1")
	text = heading.ReplaceAllString(text, "")
	text = emphasis.ReplaceAllString(text, "$2")
	text = blockquote.ReplaceAllString(text, "")
	text = rule.ReplaceAllString(text, "")
	text = blankRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text), nil
}
