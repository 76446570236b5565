package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/axellelanca/campaignshortener/cmd"
	"github.com/axellelanca/campaignshortener/internal/models"
	"github.com/axellelanca/campaignshortener/internal/repository"
	"github.com/axellelanca/campaignshortener/internal/services"
)

var createFlags struct {
	url          string
	name         string
	campaignType string
	utm          models.UTM
	notes        string
	tags         string
}

// CreateCmd creates a campaign from the command line.
var CreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Creates a campaign short URL.",
	Long: `Creates a campaign: the destination is normalized, the UTM parameters are merged into
it and a short code is allocated.

Example:
  campaignshortener create --url="https://shop.example.com/sale" --name="Summer Sale" \
    --type="Social Media" --utm-source=facebook --utm-medium=cpc`,
	RunE: func(c *cobra.Command, _ []string) error {
		db, closeDB, err := cmd.OpenDB()
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer closeDB()

		registry := services.NewCampaignService(
			repository.NewCampaignRepository(db),
			repository.NewClickRepository(db),
			nil, nil, cmd.Cfg.Server.BaseURL, zap.NewNop())
		if _, err := registry.WarmFilter(c.Context()); err != nil {
			return err
		}
		return runCreate(c.Context(), registry)
	},
}

func runCreate(ctx context.Context, registry *services.CampaignService) error {
	var tags []string
	for _, t := range strings.Split(createFlags.tags, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	campaign, err := registry.CreateShortURL(ctx, services.CreateCampaignInput{
		URL:          createFlags.url,
		CampaignName: createFlags.name,
		CampaignType: createFlags.campaignType,
		UTM:          createFlags.utm,
		Notes:        createFlags.notes,
		Tags:         tags,
	})
	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}

	fmt.Println("Campaign created:")
	fmt.Printf("Name:        %s\n", campaign.CampaignName)
	fmt.Printf("Code:        %s\n", campaign.ShortCode)
	fmt.Printf("Destination: %s\n", campaign.OriginalURL)
	fmt.Printf("Short URL:   %s\n", registry.ShortURL(campaign.ShortCode))
	return nil
}

func init() {
	f := CreateCmd.Flags()
	f.StringVar(&createFlags.url, "url", "", "destination URL")
	f.StringVar(&createFlags.name, "name", "", "unique campaign name")
	f.StringVar(&createFlags.campaignType, "type", models.CampaignTypeOther, "campaign type ("+strings.Join(models.CampaignTypes, ", ")+")")
	f.StringVar(&createFlags.utm.Source, "utm-source", "", "utm_source")
	f.StringVar(&createFlags.utm.Medium, "utm-medium", "", "utm_medium")
	f.StringVar(&createFlags.utm.Campaign, "utm-campaign", "", "utm_campaign")
	f.StringVar(&createFlags.utm.Content, "utm-content", "", "utm_content")
	f.StringVar(&createFlags.utm.Term, "utm-term", "", "utm_term")
	f.StringVar(&createFlags.notes, "notes", "", "free-form notes")
	f.StringVar(&createFlags.tags, "tags", "", "comma-separated tags")
	_ = CreateCmd.MarkFlagRequired("url")
	_ = CreateCmd.MarkFlagRequired("name")

	cmd.RootCmd.AddCommand(CreateCmd)
}
