package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseTags(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", []string{}},
		{"[fitness, \"morning\", 'hiit']", []string{"fitness", "morning", "hiit"}},
		{" a ,, b ", []string{"a", "b"}},
	}

	for _, tt := range tests {
		got := ParseTags(tt.in)
		if len(tt.want) == 0 {
			assert.Empty(t, got, tt.in)
			continue
		}
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestNormalizeHashtags(t *testing.T) {
	got := NormalizeHashtags([]string{"Fitness", "#fitness", " ##Morning Run ", "", "#"})
	assert.Equal(t, []string{"#fitness", "#morningrun"}, got)
}

func TestNormalizePlatforms(t *testing.T) {
	got := NormalizePlatforms([]string{"Instagram", "facebook", "INSTAGRAM", " tiktok "})
	assert.Equal(t, []string{"instagram", "facebook", "tiktok"}, got)
}
