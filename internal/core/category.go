package core

import (
	"strings"
)

// Category is the closed set of values a message can be filed under
type Category string

const (
	CategoryAdvertising   Category = "Advertising"
	CategoryMarketing     Category = "Marketing"
	CategoryWantsMoney    Category = "Wants-Money"
	CategoryOther         Category = "Other"
	CategoryBlockedDomain Category = "Blocked_Domain"
	CategoryAllowedDomain Category = "Allowed_Domain"
)

const (
	repeatOffenderSuffix = "-RepeatOffender"
	maxCategoryLength    = 30
)

// classifierCategories are the only values the AI classifier may produce,
// keyed by their stripped, lower-cased form
var classifierCategories = map[string]Category{
	"advertising": CategoryAdvertising,
	"marketing":   CategoryMarketing,
	"wantsmoney":  CategoryWantsMoney,
	"other":       CategoryOther,
}

// learnableCategories may feed the repeat-offender learner
var learnableCategories = map[Category]struct{}{
	CategoryAdvertising:   {},
	CategoryMarketing:     {},
	CategoryWantsMoney:    {},
	CategoryBlockedDomain: {},
}

// ClassifierCategories lists the categories the classifier is asked to choose from
func ClassifierCategories() []Category {
	return []Category{CategoryAdvertising, CategoryMarketing, CategoryWantsMoney, CategoryOther}
}

// IsLearnable reports whether outcomes for this category train patterns
func (c Category) IsLearnable() bool {
	_, ok := learnableCategories[c]
	return ok
}

// Verdict is a category plus the flag marking it as supplied by a learned pattern
type Verdict struct {
	Category       Category
	RepeatOffender bool
}

// String renders the verdict, appending -RepeatOffender when flagged
func (v Verdict) String() string {
	if v.RepeatOffender {
		return string(v.Category) + repeatOffenderSuffix
	}
	return string(v.Category)
}

// LookupClassifierCategory matches a configured name against the classifier
// categories, ignoring case only. Unknown names report false.
func LookupClassifierCategory(name string) (Category, bool) {
	name = strings.TrimSpace(name)
	for _, c := range ClassifierCategories() {
		if strings.EqualFold(name, string(c)) {
			return c, true
		}
	}
	return "", false
}

var categoryStripper = strings.NewReplacer(
	`"`, "",
	"'", "",
	"`", "",
	"*", "",
	"=", "",
	"+", "",
	"-", "",
	"_", "",
)

// SanitizeCategory normalizes raw classifier output into one of the four
// classifier categories. Anything oversized or unknown becomes Other.
func SanitizeCategory(raw string) Category {
	cleaned := strings.TrimSpace(categoryStripper.Replace(raw))
	if len(cleaned) > maxCategoryLength {
		return CategoryOther
	}

	// Wants-Money loses its hyphen to the stripper, so match on the stripped form
	key := strings.ToLower(strings.Join(strings.Fields(cleaned), ""))
	if c, ok := classifierCategories[key]; ok {
		return c
	}
	return CategoryOther
}
