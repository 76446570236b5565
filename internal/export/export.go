// Package export renders analytics reports as CSV or Excel workbooks.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	apperrors "github.com/axellelanca/campaignshortener/internal/errors"
	"github.com/axellelanca/campaignshortener/internal/services"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

const (
	ContentTypeCSV  = "text/csv"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// ParseFormat accepts csv, xlsx and excel (case-insensitive). Empty means csv.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "csv":
		return FormatCSV, nil
	case "xlsx", "excel":
		return FormatXLSX, nil
	default:
		return "", apperrors.Validationf("export.ParseFormat", "unsupported export format %q", s)
	}
}

// Report is the data behind one export.
type Report struct {
	GeneratedAt time.Time
	Summary     *services.Summary
	Sources     *services.TrafficSources
}

var campaignHeader = []string{
	"campaign_name", "short_code", "total_clicks", "unique_visitors",
	"conversions", "conversion_rate", "avg_time_on_page", "bounce_rate",
}

func campaignRecord(s services.CampaignStat) []string {
	return []string{
		s.Name,
		s.ShortCode,
		strconv.FormatInt(s.TotalClicks, 10),
		strconv.FormatInt(s.UniqueVisitors, 10),
		strconv.FormatInt(s.Conversions, 10),
		strconv.FormatFloat(s.ConversionRate, 'f', 2, 64),
		strconv.FormatFloat(s.AvgTimeOnPage, 'f', 2, 64),
		strconv.FormatFloat(s.BounceRate, 'f', 2, 64),
	}
}

// Render encodes the report and returns the file name, content type and bytes.
func Render(format Format, r Report) (string, string, []byte, error) {
	stamp := r.GeneratedAt.Format("20060102_150405")
	switch format {
	case FormatXLSX:
		data, err := XLSX(r)
		return "campaign_analytics_" + stamp + ".xlsx", ContentTypeXLSX, data, err
	default:
		data, err := CSV(r)
		return "campaign_analytics_" + stamp + ".csv", ContentTypeCSV, data, err
	}
}

// CSV writes one row per campaign.
func CSV(r Report) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	if err := w.Write(campaignHeader); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}
	if r.Summary != nil {
		for _, s := range r.Summary.CampaignStats {
			if err := w.Write(campaignRecord(s)); err != nil {
				return nil, fmt.Errorf("failed to write CSV row: %w", err)
			}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush CSV: %w", err)
	}
	return buf.Bytes(), nil
}

// XLSX writes a workbook with Summary, Campaigns, Daily and Sources sheets.
func XLSX(r Report) ([]byte, error) {
	xl := excelize.NewFile()
	defer func() { _ = xl.Close() }()

	summary := r.Summary
	if summary == nil {
		summary = &services.Summary{}
	}

	const first = "Summary"
	if err := xl.SetSheetName(xl.GetSheetName(0), first); err != nil {
		return nil, fmt.Errorf("failed to rename sheet: %w", err)
	}
	overview := [][]any{
		{"generated_at", r.GeneratedAt.Format(time.RFC3339)},
		{"total_clicks", summary.TotalClicks},
		{"unique_visitors", summary.UniqueVisitors},
		{"active_days", summary.ActiveDays},
		{"engagement_rate", summary.EngagementRate},
	}
	for i, row := range overview {
		if err := setRow(xl, first, i+1, row); err != nil {
			return nil, err
		}
	}

	campaignRows := [][]any{toAny(campaignHeader)}
	for _, s := range summary.CampaignStats {
		campaignRows = append(campaignRows, []any{
			s.Name, s.ShortCode, s.TotalClicks, s.UniqueVisitors,
			s.Conversions, s.ConversionRate, s.AvgTimeOnPage, s.BounceRate,
		})
	}
	if err := addSheet(xl, "Campaigns", campaignRows); err != nil {
		return nil, err
	}

	days := make([]string, 0, len(summary.DailyStats))
	for d := range summary.DailyStats {
		days = append(days, d)
	}
	sort.Strings(days)
	dailyRows := [][]any{{"date", "clicks"}}
	for _, d := range days {
		dailyRows = append(dailyRows, []any{d, summary.DailyStats[d]})
	}
	if err := addSheet(xl, "Daily", dailyRows); err != nil {
		return nil, err
	}

	sourceRows := [][]any{{"source", "clicks"}}
	if r.Sources != nil {
		for _, s := range services.TrafficSourceOrder {
			sourceRows = append(sourceRows, []any{s, r.Sources.Sources[s]})
		}
	}
	if err := addSheet(xl, "Sources", sourceRows); err != nil {
		return nil, err
	}

	buf, err := xl.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write Excel file: %w", err)
	}
	return buf.Bytes(), nil
}

func addSheet(xl *excelize.File, name string, rows [][]any) error {
	if _, err := xl.NewSheet(name); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", name, err)
	}
	for i, row := range rows {
		if err := setRow(xl, name, i+1, row); err != nil {
			return err
		}
	}
	return nil
}

func setRow(xl *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := xl.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write row %d of %s: %w", row, sheet, err)
	}
	return nil
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
