package export

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	apperrors "github.com/axellelanca/campaignshortener/internal/errors"
	"github.com/axellelanca/campaignshortener/internal/services"
)

func sampleReport() Report {
	return Report{
		GeneratedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Summary: &services.Summary{
			TotalClicks:    3,
			UniqueVisitors: 2,
			ActiveDays:     2,
			EngagementRate: 66.67,
			DailyStats:     map[string]int64{"2024-05-02": 1, "2024-05-01": 2},
			CampaignStats: []services.CampaignStat{
				{Name: "Summer", ShortCode: "abc123", TotalClicks: 3, UniqueVisitors: 2, BounceRate: 100},
			},
		},
		Sources: &services.TrafficSources{Sources: map[string]int64{services.SourceDirect: 3}, Total: 3},
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatCSV, "CSV": FormatCSV, "xlsx": FormatXLSX, "excel": FormatXLSX} {
		got, err := ParseFormat(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("pdf")
	assert.Equal(t, apperrors.Validation, apperrors.KindOf(err))
}

func TestCSV(t *testing.T) {
	name, contentType, data, err := Render(FormatCSV, sampleReport())
	require.NoError(t, err)
	assert.Equal(t, "campaign_analytics_20240501_120000.csv", name)
	assert.Equal(t, ContentTypeCSV, contentType)

	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, campaignHeader, records[0])
	assert.Equal(t, []string{"Summer", "abc123", "3", "2", "0", "0.00", "0.00", "100.00"}, records[1])
}

func TestXLSX(t *testing.T) {
	_, contentType, data, err := Render(FormatXLSX, sampleReport())
	require.NoError(t, err)
	assert.Equal(t, ContentTypeXLSX, contentType)

	xl, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer xl.Close()

	assert.Equal(t, []string{"Summary", "Campaigns", "Daily", "Sources"}, xl.GetSheetList())

	daily, err := xl.GetRows("Daily")
	require.NoError(t, err)
	require.Len(t, daily, 3)
	assert.Equal(t, []string{"2024-05-01", "2"}, daily[1])

	campaigns, err := xl.GetRows("Campaigns")
	require.NoError(t, err)
	require.Len(t, campaigns, 2)
	assert.Equal(t, "Summer", campaigns[1][0])
}
