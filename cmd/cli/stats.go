package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/axellelanca/campaignshortener/cmd"
	"github.com/axellelanca/campaignshortener/internal/repository"
	"github.com/axellelanca/campaignshortener/internal/services"
)

// StatsCmd prints the counters and the analytics summary of one campaign.
var StatsCmd = &cobra.Command{
	Use:   "stats [short-code]",
	Short: "Shows statistics for a campaign short code.",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		db, closeDB, err := cmd.OpenDB()
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer closeDB()

		campaignRepo := repository.NewCampaignRepository(db)
		clickRepo := repository.NewClickRepository(db)
		registry := services.NewCampaignService(campaignRepo, clickRepo, nil, nil, cmd.Cfg.Server.BaseURL, zap.NewNop())
		aggregator := services.NewAggregator(repository.NewAnalyticsRepository(db),
			repository.NewJourneyRepository(db), campaignRepo, zap.NewNop())

		campaign, total, err := registry.GetCampaignStats(c.Context(), args[0])
		if err != nil {
			return fmt.Errorf("short code %q: %w", args[0], err)
		}
		summary, err := aggregator.Summary(c.Context(), repository.AnalyticsFilter{ShortCodes: []string{campaign.ShortCode}})
		if err != nil {
			return err
		}

		fmt.Printf("Statistics for %s (%s)\n", campaign.ShortCode, campaign.CampaignName)
		fmt.Printf("Destination:     %s\n", campaign.OriginalURL)
		fmt.Printf("Active:          %t\n", campaign.IsActive)
		fmt.Printf("Total clicks:    %d\n", total)
		fmt.Printf("Unique visitors: %d\n", campaign.UniqueVisitors)
		fmt.Printf("Active days:     %d\n", summary.ActiveDays)
		fmt.Printf("Engagement rate: %.2f%%\n", summary.EngagementRate)
		if campaign.LastClickedAt != nil {
			fmt.Printf("Last click:      %s\n", campaign.LastClickedAt.Format(time.DateTime))
		}
		fmt.Printf("Created:         %s\n", campaign.CreatedAt.Format(time.DateTime))
		return nil
	},
}

func init() {
	cmd.RootCmd.AddCommand(StatsCmd)
}
