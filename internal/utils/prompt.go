package utils

import (
	"fmt"
	"strings"
)

const categoryPromptFormat = `You are an email triage system. Read the email below and file it under exactly one category.

Categories:
%s

Reply with only the category name, or with a JSON object {"category": "<name>"}. Do not explain.

Email:
%s`

// BuildCategoryPrompt renders the classification prompt for cleaned message text
func BuildCategoryPrompt(categories []string, text string) string {
	var list strings.Builder
	for _, c := range categories {
		list.WriteString("- ")
		list.WriteString(c)
		list.WriteString("\n")
	}
	return fmt.Sprintf(categoryPromptFormat, strings.TrimRight(list.String(), "\n"), text)
}
