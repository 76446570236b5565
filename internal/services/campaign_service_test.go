package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/axellelanca/campaignshortener/internal/errors"
	"github.com/axellelanca/campaignshortener/internal/models"
	"github.com/axellelanca/campaignshortener/internal/repository"
)

func TestCreateShortURL_MergesUTMInOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.registry.CreateShortURL(ctx, CreateCampaignInput{
		URL:          "example.com/landing",
		CampaignName: "Summer",
		CampaignType: models.CampaignTypeEmail,
		UTM:          models.UTM{Source: "news", Medium: "email"},
	})
	require.NoError(t, err)
	assert.Len(t, c.ShortCode, ShortCodeLength)
	assert.True(t, IsValidShortCode(c.ShortCode))

	got, err := f.registry.Lookup(ctx, c.ShortCode)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/landing?utm_source=news&utm_medium=email", got.OriginalURL)
	assert.Equal(t, "news", got.UTMSource)
	assert.True(t, got.IsActive)
	assert.Equal(t, "https://go.example.com/?r="+c.ShortCode, f.registry.ShortURL(c.ShortCode))
}

func TestCreateShortURL_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   CreateCampaignInput
	}{
		{"missing url", CreateCampaignInput{CampaignName: "A"}},
		{"missing name", CreateCampaignInput{URL: "example.com"}},
		{"unknown type", CreateCampaignInput{URL: "example.com", CampaignName: "A", CampaignType: "Billboard"}},
		{"bad url", CreateCampaignInput{URL: "https://", CampaignName: "A"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.registry.CreateShortURL(ctx, tt.in)
			require.Error(t, err)
			assert.Equal(t, apperrors.Validation, apperrors.KindOf(err))
		})
	}
}

func TestCreateShortURL_DefaultsTypeAndRejectsDuplicateName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.registry.CreateShortURL(ctx, CreateCampaignInput{URL: "example.com", CampaignName: "Launch"})
	require.NoError(t, err)
	assert.Equal(t, models.CampaignTypeOther, c.CampaignType)

	_, err = f.registry.CreateShortURL(ctx, CreateCampaignInput{URL: "example.org", CampaignName: "Launch"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrDuplicateName)
	assert.Equal(t, apperrors.Conflict, apperrors.KindOf(err))
}

func TestLookup_NotFoundCases(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.createCampaign(t, "Lookup")

	for _, code := range []string{"", "abc", "!!!!!!", "zzzzzz"} {
		_, err := f.registry.Lookup(ctx, code)
		assert.Equal(t, apperrors.NotFound, apperrors.KindOf(err), code)
	}

	inactive := false
	_, err := f.registry.UpdateCampaign(ctx, c.ShortCode, CampaignPatch{IsActive: &inactive})
	require.NoError(t, err)
	_, err = f.registry.Lookup(ctx, c.ShortCode)
	assert.ErrorIs(t, err, apperrors.ErrShortCodeNotFound)
}

func TestUpdateCampaign_RewritesUTM(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.registry.CreateShortURL(ctx, CreateCampaignInput{
		URL:          "https://example.com/p?ref=1",
		CampaignName: "Patch",
		UTM:          models.UTM{Source: "news", Medium: "email"},
	})
	require.NoError(t, err)

	source := "twitter"
	medium := ""
	expiry := time.Now().Add(48 * time.Hour)
	updated, err := f.registry.UpdateCampaign(ctx, c.ShortCode, CampaignPatch{
		UTMSource:  &source,
		UTMMedium:  &medium,
		ExpiryDate: &expiry,
		Tags:       []string{" spring ", "", "promo"},
	})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/p?ref=1&utm_source=twitter", updated.OriginalURL)
	assert.Equal(t, "", updated.UTMMedium)
	assert.Equal(t, []string{"spring", "promo"}, updated.TagList())
	require.NotNil(t, updated.ExpiryDate)

	empty := "  "
	_, err = f.registry.UpdateCampaign(ctx, c.ShortCode, CampaignPatch{CampaignName: &empty})
	assert.Equal(t, apperrors.Validation, apperrors.KindOf(err))
}

func TestDeleteCampaign_RemovesFromLookup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.createCampaign(t, "Gone")

	require.NoError(t, f.registry.DeleteCampaign(ctx, c.ShortCode))
	_, err := f.registry.Lookup(ctx, c.ShortCode)
	assert.Equal(t, apperrors.NotFound, apperrors.KindOf(err))

	err = f.registry.DeleteCampaign(ctx, c.ShortCode)
	assert.Equal(t, apperrors.NotFound, apperrors.KindOf(err))
}

func TestWarmFilterAndList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createCampaign(t, "One")
	f.createCampaign(t, "Two")

	n, err := f.registry.WarmFilter(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	list, err := f.registry.ListCampaigns(ctx, repository.CampaignFilter{Search: "Tw"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Two", list[0].CampaignName)
}
