package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractCategory(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
	}{
		{"bare word", "  Marketing \n", "Marketing"},
		{"json", `{"category": "Wants-Money"}`, "Wants-Money"},
		{"json in prose", "Sure! Here you go: {\"category\":\"Advertising\"} hope that helps", "Advertising"},
		{"first line", "Other\nBecause it is a personal note.", "Other"},
		{"json without category", `{"label": "Other"}`, `{"label": "Other"}`},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractCategory(tt.response))
		})
	}
}

func TestBuildCategoryPrompt(t *testing.T) {
	prompt := BuildCategoryPrompt([]string{"Advertising", "Other"}, "Subject: hi")

	assert.Contains(t, prompt, "- Advertising\n- Other\n")
	assert.True(t, strings.HasSuffix(prompt, "Email:\nSubject: hi"))
}
