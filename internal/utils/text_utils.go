package utils

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
)

var (
	htmlAnchorRe    = regexp.MustCompile(`(?is)<a\b[^>]*>(.*?)</a>`)
	htmlImageRe     = regexp.MustCompile(`(?is)<img\b[^>]*>`)
	markdownImageRe = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	markdownLinkRe  = regexp.MustCompile(`\[([^\]]*)\]\((?:https?|mailto):[^)]*\)`)
	bareURLRe       = regexp.MustCompile(`(?i)\b(?:https?://|www\.)[^\s<>"']+`)
	cidRefRe        = regexp.MustCompile(`(?i)\[?cid:[^\s\]>]+\]?`)
	dataURIRe       = regexp.MustCompile(`(?i)data:[a-z0-9.+/-]+;base64,[a-z0-9+/=]+`)
	base64RunRe     = regexp.MustCompile(`(?m)^[A-Za-z0-9+/]{60,}={0,2}\s*$`)
	mimeHeaderRe    = regexp.MustCompile(`(?im)^content-(?:transfer-encoding|type|disposition|id):.*$`)
	qpSoftBreakRe   = regexp.MustCompile(`=\r?\n`)
	htmlTagRe       = regexp.MustCompile(`(?s)<[^>]+>`)
	whitespaceRe    = regexp.MustCompile(`[ \t\f\v]+`)
	blankLinesRe    = regexp.MustCompile(`\n{3,}`)
)

// TextProcessor provides utilities for processing text
type TextProcessor struct {
	logger *zap.Logger
}

// NewTextProcessor creates a new TextProcessor
func NewTextProcessor(logger *zap.Logger) *TextProcessor {
	return &TextProcessor{
		logger: logger,
	}
}

// TruncateText safely truncates text to the specified maximum size
// and ensures the result is valid UTF-8
func (tp *TextProcessor) TruncateText(text string, maxSize int) string {
	if maxSize <= 0 || len(text) <= maxSize {
		return text
	}

	truncated := text[:maxSize]

	// Drop bytes until the cut lands on a rune boundary
	for !utf8.ValidString(truncated) && len(truncated) > 0 {
		truncated = truncated[:len(truncated)-1]
	}

	tp.logger.Debug("Text truncated",
		zap.Int("original_size", len(text)),
		zap.Int("truncated_size", len(truncated)),
		zap.Int("max_size", maxSize))

	return truncated + "\n[... Content truncated due to size limits ...]"
}

// SanitizeUTF8 ensures the string contains only valid UTF-8 characters
func (tp *TextProcessor) SanitizeUTF8(text string) string {
	if utf8.ValidString(text) {
		return text
	}

	result := make([]rune, 0, len(text))
	for i, r := range text {
		if r == utf8.RuneError {
			_, size := utf8.DecodeRuneInString(text[i:])
			if size == 1 {
				continue
			}
		}
		result = append(result, r)
	}

	tp.logger.Debug("Text sanitized",
		zap.Int("original_size", len(text)),
		zap.Int("sanitized_size", len(string(result))))

	return string(result)
}

// ProcessText truncates and sanitizes text in one operation
func (tp *TextProcessor) ProcessText(text string, maxSize int) string {
	return tp.SanitizeUTF8(tp.TruncateText(text, maxSize))
}

// StripLinks removes hyperlinks, keeping anchor and markdown link text
func (tp *TextProcessor) StripLinks(text string) string {
	text = htmlAnchorRe.ReplaceAllString(text, "$1")
	text = markdownLinkRe.ReplaceAllString(text, "$1")
	return bareURLRe.ReplaceAllString(text, "")
}

// StripImages removes embedded images and inline attachment references
func (tp *TextProcessor) StripImages(text string) string {
	text = htmlImageRe.ReplaceAllString(text, "")
	text = markdownImageRe.ReplaceAllString(text, "")
	return cidRefRe.ReplaceAllString(text, "")
}

// StripEncodedContent removes data URIs, base64 runs, MIME part headers and
// quoted-printable soft line breaks
func (tp *TextProcessor) StripEncodedContent(text string) string {
	text = dataURIRe.ReplaceAllString(text, "")
	text = base64RunRe.ReplaceAllString(text, "")
	text = mimeHeaderRe.ReplaceAllString(text, "")
	return qpSoftBreakRe.ReplaceAllString(text, "")
}

// CleanForClassification prepares subject and body for the classifier:
// links, images and encoded blocks are stripped, remaining markup removed,
// the text NFKC-normalized, whitespace collapsed and the result truncated.
func (tp *TextProcessor) CleanForClassification(subject, body string, maxSize int) string {
	text := tp.SanitizeUTF8(body)
	text = tp.StripEncodedContent(text)
	text = tp.StripImages(text)
	text = tp.StripLinks(text)
	text = htmlTagRe.ReplaceAllString(text, " ")
	text = norm.NFKC.String(text)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = whitespaceRe.ReplaceAllString(text, " ")
	text = blankLinesRe.ReplaceAllString(text, "\n\n")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = strings.TrimSpace(strings.Join(lines, "\n"))

	combined := "Subject: " + strings.TrimSpace(norm.NFKC.String(tp.SanitizeUTF8(subject)))
	if text != "" {
		combined += "\n\n" + text
	}
	return tp.ProcessText(combined, maxSize)
}
