package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/axellelanca/campaignshortener/cmd"
	"github.com/axellelanca/campaignshortener/internal/export"
	"github.com/axellelanca/campaignshortener/internal/repository"
	"github.com/axellelanca/campaignshortener/internal/services"
)

var exportFlags struct {
	format    string
	start     string
	end       string
	campaigns string
	states    string
	outDir    string
}

// ExportCmd writes the analytics report to a CSV or XLSX file.
var ExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Exports the analytics report as CSV or XLSX.",
	RunE: func(c *cobra.Command, _ []string) error {
		format, err := export.ParseFormat(exportFlags.format)
		if err != nil {
			return err
		}

		db, closeDB, err := cmd.OpenDB()
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer closeDB()

		campaignRepo := repository.NewCampaignRepository(db)
		aggregator := services.NewAggregator(repository.NewAnalyticsRepository(db),
			repository.NewJourneyRepository(db), campaignRepo, zap.NewNop())

		f, err := aggregator.NewFilter(exportFlags.start, exportFlags.end, splitList(exportFlags.campaigns), splitList(exportFlags.states))
		if err != nil {
			return err
		}
		summary, err := aggregator.Summary(c.Context(), f)
		if err != nil {
			return err
		}
		sources, err := aggregator.TrafficSources(c.Context(), f)
		if err != nil {
			return err
		}

		name, _, data, err := export.Render(format, export.Report{GeneratedAt: time.Now(), Summary: summary, Sources: sources})
		if err != nil {
			return err
		}
		path := filepath.Join(exportFlags.outDir, name)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		fmt.Printf("Report written to %s\n", path)
		return nil
	},
}

func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func init() {
	f := ExportCmd.Flags()
	f.StringVar(&exportFlags.format, "format", "csv", "csv or xlsx")
	f.StringVar(&exportFlags.start, "start", "", "first day, YYYY-MM-DD")
	f.StringVar(&exportFlags.end, "end", "", "last day (inclusive), YYYY-MM-DD")
	f.StringVar(&exportFlags.campaigns, "campaigns", "", "comma-separated campaign names")
	f.StringVar(&exportFlags.states, "states", "", "comma-separated states")
	f.StringVar(&exportFlags.outDir, "out", ".", "output directory")

	cmd.RootCmd.AddCommand(ExportCmd)
}
