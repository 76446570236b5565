package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/axellelanca/campaignshortener/internal/errors"
	"github.com/axellelanca/campaignshortener/internal/models"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"example.com/landing", "https://example.com/landing"},
		{"  https://example.com  ", "https://example.com"},
		{"http://example.com/a?b=c", "http://example.com/a?b=c"},
		{"HTTPS://Example.com", "HTTPS://Example.com"},
	}
	for _, tt := range tests {
		got, err := NormalizeURL(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)

		again, err := NormalizeURL(got)
		require.NoError(t, err)
		assert.Equal(t, got, again, "normalization must be idempotent")
	}
}

func TestNormalizeURL_Invalid(t *testing.T) {
	for _, in := range []string{"", "   ", "not a url", "https://", "http://exa mple.com"} {
		_, err := NormalizeURL(in)
		assert.ErrorIs(t, err, apperrors.ErrInvalidURL, in)
	}
}

func TestMergeUTM_AppendsInCanonicalOrder(t *testing.T) {
	got, err := MergeUTM("https://example.com/landing", models.UTM{Source: "news", Medium: "email"})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/landing?utm_source=news&utm_medium=email", got)
}

func TestMergeUTM_OverwritesInPlace(t *testing.T) {
	got, err := MergeUTM("https://example.com/?utm_medium=old&ref=x#top", models.UTM{Source: "ads", Medium: "cpc"})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/?utm_medium=cpc&ref=x&utm_source=ads#top", got)
}

func TestMergeUTM_Idempotent(t *testing.T) {
	utm := models.UTM{Source: "a b", Campaign: "spring/24", Term: "shoes"}
	once, err := MergeUTM("https://example.com/p?q=1", utm)
	require.NoError(t, err)
	twice, err := MergeUTM(once, utm)
	require.NoError(t, err)
	assert.Equal(t, once, twice)
}

func TestMergeUTM_NoParamsLeavesURLUntouched(t *testing.T) {
	raw := "https://example.com/p?b=2&a=1"
	got, err := MergeUTM(raw, models.UTM{})
	require.NoError(t, err)
	assert.Equal(t, raw, got)
}

func TestApplyUTMChange_RemovesClearedKeys(t *testing.T) {
	raw := "https://example.com/?utm_source=news&utm_medium=email"
	got, err := ApplyUTMChange(raw, models.UTM{Source: "news", Medium: "email"}, models.UTM{Source: "social"})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/?utm_source=social", got)
}
