package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeFreeText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain term", input: "petstore", want: "petstore*"},
		{name: "lower-cased", input: "Pet Store", want: "pet store*"},
		{name: "punctuation removed", input: "pet-store!", want: "petstore*"},
		{name: "quotes and operators removed", input: `"pay" OR name:*bank*`, want: "pay or namebank*"},
		{name: "digits kept", input: "v2 API", want: "v2 api*"},
		{name: "empty", input: "", want: ""},
		{name: "only punctuation", input: "!@#$%^&*()", want: ""},
		{name: "only whitespace", input: "   \t ", want: ""},
		{name: "whitespace after stripping", input: " - ", want: ""},
		{name: "non-ascii letters removed", input: "café", want: "caf*"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeFreeText(tt.input))
		})
	}
}

func TestSanitizeFreeText_Idempotent(t *testing.T) {
	for _, input := range []string{"Pet Store", "a*b*c", "weather-API v3", "***"} {
		once := SanitizeFreeText(input)
		if once == "" {
			continue
		}
		// Re-sanitizing strips the wildcard and appends it again
		assert.Equal(t, once, SanitizeFreeText(once), input)
	}
}

func TestLikePattern(t *testing.T) {
	assert.Equal(t, "%finance%", LikePattern("Finance"))
	assert.Equal(t, "%%", LikePattern(""))
	assert.Equal(t, "%1=1; drop table am_api%", LikePattern("1=1; DROP TABLE AM_API"))
}
