package chunk

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	// word-\nword left by PDF line breaks
	hyphenBreakPattern = regexp.MustCompile(`([\p{L}\p{N}_])-\n([\p{L}\p{N}_])`)

	singleQuotePattern = regexp.MustCompile(`[\x{2018}\x{2019}\x{201A}\x{201B}]`)
	doubleQuotePattern = regexp.MustCompile(`[\x{201C}\x{201D}\x{201E}\x{201F}]`)
	dashPattern        = regexp.MustCompile(`[\x{2013}\x{2014}\x{2015}]`)

	inlineSpacePattern = regexp.MustCompile(`[\t\v\f\r \p{Zs}]+`)
	blankRunPattern    = regexp.MustCompile(`\n{3,}`)
)

// Clean removes extraction artifacts from page text: it normalizes to NFC,
// drops control characters, re-joins hyphenated line breaks, folds typographic
// quotes and dashes to ASCII, and collapses whitespace.
func Clean(text string) string {
	text = norm.NFC.String(text)
	text = stripControl(text)
	text = hyphenBreakPattern.ReplaceAllString(text, "$1$2")
	text = normalizePunctuation(text)
	text = strings.ReplaceAll(text, "\uFFFD", "")
	return fixWhitespace(text)
}

func stripControl(text string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' || r == '\r' {
			return r
		}
		if unicode.In(r, unicode.C) {
			return -1
		}
		return r
	}, text)
}

func normalizePunctuation(text string) string {
	text = singleQuotePattern.ReplaceAllString(text, "'")
	text = doubleQuotePattern.ReplaceAllString(text, `"`)
	text = dashPattern.ReplaceAllString(text, "-")
	return strings.ReplaceAll(text, "\u2026", "...")
}

func fixWhitespace(text string) string {
	text = inlineSpacePattern.ReplaceAllString(text, " ")
	text = blankRunPattern.ReplaceAllString(text, "\n\n")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
