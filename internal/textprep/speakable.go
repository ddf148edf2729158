// Package textprep turns dialogue replies into text the synthesizer can
// read aloud: markup, links and pictographs are removed and punctuation is
// normalised so that prosody prompts are not confused by stray symbols.
package textprep

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Regex patterns for speech preparation.
const (
	codeFencePattern   = "```[a-zA-Z0-9_-]*"
	markdownLinkRegex  = `\[([^\]]+)\]\([^)]*\)`
	urlRegexPattern    = `https?://\S+|www\.\S+`
	emailRegexPattern  = `[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`
	emphasisPattern    = `(\*{1,3}|_{2,3}|~~|` + "`" + `)`
	headingPattern     = `(?m)^\s{0,3}#{1,6}\s+`
	bulletPattern      = `(?m)^\s*(?:[-*+•]|\d+[.)])\s+`
	repeatedBangs      = `([!?])[!?]+`
	repeatedDots       = `\.{4,}`
	repeatedCommas     = `[,;:]{2,}`
	whitespacePattern  = `\s+`
	spaceBeforePunct   = `\s+([.,!?;:])`
	linkReplacement    = "$1"
	ellipsis           = "..."
	zeroWidthJoiner    = '‍'
	variationSelector  = '️'
	variationSelector2 = '︎'
)

// Punctuation and formatting constants.
const (
	emDash       = "—"
	enDash       = "–"
	figureDash   = "‒"
	ellipsisChar = "…"
)

// Preprocessor prepares text for speech synthesis.
type Preprocessor struct {
	codeFence    *regexp.Regexp
	markdownLink *regexp.Regexp
	url          *regexp.Regexp
	email        *regexp.Regexp
	emphasis     *regexp.Regexp
	heading      *regexp.Regexp
	bullet       *regexp.Regexp
	bangs        *regexp.Regexp
	dots         *regexp.Regexp
	commas       *regexp.Regexp
	whitespace   *regexp.Regexp
	spaceBefore  *regexp.Regexp
	quotes       *strings.Replacer
}

// NewPreprocessor compiles the patterns once; the result is safe for
// concurrent use.
func NewPreprocessor() *Preprocessor {
	return &Preprocessor{
		codeFence:    regexp.MustCompile(codeFencePattern),
		markdownLink: regexp.MustCompile(markdownLinkRegex),
		url:          regexp.MustCompile(urlRegexPattern),
		email:        regexp.MustCompile(emailRegexPattern),
		emphasis:     regexp.MustCompile(emphasisPattern),
		heading:      regexp.MustCompile(headingPattern),
		bullet:       regexp.MustCompile(bulletPattern),
		bangs:        regexp.MustCompile(repeatedBangs),
		dots:         regexp.MustCompile(repeatedDots),
		commas:       regexp.MustCompile(repeatedCommas),
		whitespace:   regexp.MustCompile(whitespacePattern),
		spaceBefore:  regexp.MustCompile(spaceBeforePunct),
		quotes: strings.NewReplacer(
			emDash, ", ",
			enDash, "-",
			figureDash, "-",
			ellipsisChar, ellipsis,
			"“", `"`, "”", `"`, "«", `"`, "»", `"`,
			"‘", "'", "’", "'",
		),
	}
}

// Speakable returns text with everything a voice cannot say removed. The
// result is empty when nothing speakable remains.
func (p *Preprocessor) Speakable(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}

	cleaned := p.stripMarkup(text)
	cleaned = p.url.ReplaceAllString(cleaned, "")
	cleaned = p.email.ReplaceAllString(cleaned, "")
	cleaned = removeSymbols(cleaned)
	cleaned = p.quotes.Replace(cleaned)
	cleaned = p.collapsePunctuation(cleaned)
	cleaned = p.whitespace.ReplaceAllString(cleaned, " ")
	cleaned = p.spaceBefore.ReplaceAllString(cleaned, "$1")

	return ensureSentenceEnding(cleaned)
}

// stripMarkup removes the markdown the dialogue engine tends to emit.
func (p *Preprocessor) stripMarkup(text string) string {
	text = p.codeFence.ReplaceAllString(text, "")
	text = p.markdownLink.ReplaceAllString(text, linkReplacement)
	text = p.heading.ReplaceAllString(text, "")
	text = p.bullet.ReplaceAllString(text, "")

	return p.emphasis.ReplaceAllString(text, "")
}

func (p *Preprocessor) collapsePunctuation(text string) string {
	text = p.bangs.ReplaceAllString(text, "$1")
	text = p.dots.ReplaceAllString(text, ellipsis)

	return p.commas.ReplaceAllStringFunc(text, func(run string) string {
		return run[:1]
	})
}

// removeSymbols drops pictographs, joiners and control characters.
func removeSymbols(text string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == zeroWidthJoiner, r == variationSelector, r == variationSelector2:
			return -1
		case unicode.Is(unicode.So, r), unicode.Is(unicode.Sk, r):
			return -1
		case unicode.IsControl(r) && !unicode.IsSpace(r):
			return -1
		case r >= 0x1F000 && r <= 0x1FAFF:
			return -1
		default:
			return r
		}
	}, text)
}

// ensureSentenceEnding terminates the text with sentence punctuation.
func ensureSentenceEnding(text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ""
	}

	if !containsSpeakable(trimmed) {
		return ""
	}

	lastChar, _ := utf8.DecodeLastRuneInString(trimmed)

	switch lastChar {
	case '.', '!', '?':
		return trimmed
	}

	if unicode.IsPunct(lastChar) && lastChar != '"' && lastChar != '\'' && lastChar != ')' {
		trimmed = strings.TrimRightFunc(trimmed, unicode.IsPunct)
	}

	return trimmed + "."
}

func containsSpeakable(text string) bool {
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}

	return false
}
