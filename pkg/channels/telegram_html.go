package channels

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	fencedBlockRe = regexp.MustCompile("(?s)```[a-zA-Z0-9_+.-]*\n?(.*?)```")
	inlineCodeRe  = regexp.MustCompile("`([^`\n]+)`")
	boldRe        = regexp.MustCompile(`\*\*(.+?)\*\*`)
	linkRe        = regexp.MustCompile(`\[([^\]]+)\]\(([^)\s]+)\)`)
	headingRe     = regexp.MustCompile(`(?m)^#{1,6}[ \t]+(.+)$`)
)

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// markdownToTelegramHTML renders the markdown subset droid replies use
// into Telegram's HTML flavor. Code spans are lifted out first so their
// contents are escaped but never styled, then restored one occurrence
// at a time so repeated spans stay distinct.
func markdownToTelegramHTML(text string) string {
	var blocks []string
	text = fencedBlockRe.ReplaceAllStringFunc(text, func(m string) string {
		sub := fencedBlockRe.FindStringSubmatch(m)
		blocks = append(blocks, "<pre><code>"+htmlEscaper.Replace(sub[1])+"</code></pre>")
		return fmt.Sprintf("\x00B%d\x00", len(blocks)-1)
	})

	var codes []string
	text = inlineCodeRe.ReplaceAllStringFunc(text, func(m string) string {
		sub := inlineCodeRe.FindStringSubmatch(m)
		codes = append(codes, "<code>"+htmlEscaper.Replace(sub[1])+"</code>")
		return fmt.Sprintf("\x00C%d\x00", len(codes)-1)
	})

	text = htmlEscaper.Replace(text)
	text = boldRe.ReplaceAllString(text, "<b>$1</b>")
	text = headingRe.ReplaceAllString(text, "<b>$1</b>")
	text = linkRe.ReplaceAllString(text, `<a href="$2">$1</a>`)

	for i, code := range codes {
		text = strings.Replace(text, fmt.Sprintf("\x00C%d\x00", i), code, 1)
	}
	for i, block := range blocks {
		text = strings.Replace(text, fmt.Sprintf("\x00B%d\x00", i), block, 1)
	}
	return text
}
