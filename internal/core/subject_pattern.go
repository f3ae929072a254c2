package core

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const minSubjectLength = 5

// spamIndicators are checked in order; the first matching expression
// becomes the learned subject pattern
var spamIndicators = []string{
	`(?i)\b\d{1,3}\s?%\s*off\b`,
	`(?i)\b(buy|shop|order)\s+now\b`,
	`(?i)\b(limited|exclusive)\s+(time|offer|deal)s?\b`,
	`(?i)\b(act|hurry|respond)\s+(now|fast|today)\b`,
	`(?i)\b(last|final)\s+chance\b`,
	`(?i)\b(you\s+(have\s+|'ve\s+)?won|winner|claim\s+your\s+(prize|reward))\b`,
	`(?i)\bfree\s+(gift|money|cash|trial|shipping)\b`,
	`(?i)\b(cash|loan|credit|debt|investment)\s+(offer|approval|relief|opportunity)\b`,
	`(?i)\b(pre-?approved|guaranteed\s+income|double\s+your\s+money)\b`,
}

var compiledSpamIndicators = func() []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(spamIndicators))
	for i, expr := range spamIndicators {
		out[i] = regexp.MustCompile(expr)
	}
	return out
}()

var promotionalWords = map[string]struct{}{
	"sale": {}, "sales": {}, "deal": {}, "deals": {}, "offer": {}, "offers": {},
	"discount": {}, "discounts": {}, "free": {}, "save": {}, "savings": {},
	"off": {}, "buy": {}, "shop": {}, "now": {}, "limited": {}, "exclusive": {},
	"today": {}, "clearance": {}, "coupon": {}, "promo": {}, "bonus": {},
	"win": {}, "cash": {}, "order": {}, "special": {}, "flash": {}, "new": {},
	"hot": {}, "price": {}, "prices": {}, "cheap": {}, "bargain": {}, "gift": {},
}

var subjectTokenizer = regexp.MustCompile(`[\p{L}\p{N}]+`)

const (
	tokenWindow         = 3
	minPromotionalWords = 2
)

// ExtractSubjectPattern derives a learnable regular expression from a subject.
// Known spam phrasing wins; otherwise a subject opening with promotional
// vocabulary yields an expression anchored on its first few words.
func ExtractSubjectPattern(subject string) (string, bool) {
	subject = strings.TrimSpace(subject)
	if utf8.RuneCountInString(subject) < minSubjectLength {
		return "", false
	}

	for i, re := range compiledSpamIndicators {
		if re.MatchString(subject) {
			return spamIndicators[i], true
		}
	}

	tokens := subjectTokenizer.FindAllString(strings.ToLower(subject), tokenWindow)
	promotional := 0
	for _, tok := range tokens {
		if _, ok := promotionalWords[tok]; ok {
			promotional++
		}
	}
	if promotional < minPromotionalWords {
		return "", false
	}

	quoted := make([]string, len(tokens))
	for i, tok := range tokens {
		quoted[i] = regexp.QuoteMeta(tok)
	}
	return `(?i)(?:^|[^\p{L}\p{N}])` + strings.Join(quoted, `[^\p{L}\p{N}]+`) + `(?:$|[^\p{L}\p{N}])`, true
}
