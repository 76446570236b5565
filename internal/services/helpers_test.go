package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/axellelanca/campaignshortener/internal/events"
	"github.com/axellelanca/campaignshortener/internal/geo"
	"github.com/axellelanca/campaignshortener/internal/models"
	"github.com/axellelanca/campaignshortener/internal/repository"
	"github.com/axellelanca/campaignshortener/internal/testutil"
	"github.com/axellelanca/campaignshortener/internal/uaparser"
)

type fixture struct {
	db        *gorm.DB
	campaigns *repository.GormCampaignRepository
	clicks    *repository.GormClickRepository
	analytics *repository.GormAnalyticsRepository
	journeys  *repository.GormJourneyRepository
	registry  *CampaignService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	f := &fixture{
		db:        db,
		campaigns: repository.NewCampaignRepository(db),
		clicks:    repository.NewClickRepository(db),
		analytics: repository.NewAnalyticsRepository(db),
		journeys:  repository.NewJourneyRepository(db),
	}
	f.registry = NewCampaignService(f.campaigns, f.clicks, nil, nil, "https://go.example.com/", zap.NewNop())
	return f
}

func (f *fixture) createCampaign(t *testing.T, name string) *models.Campaign {
	t.Helper()
	c, err := f.registry.CreateShortURL(context.Background(), CreateCampaignInput{
		URL:          "example.com/" + name,
		CampaignName: name,
		CampaignType: models.CampaignTypeEmail,
	})
	require.NoError(t, err)
	return c
}

// fixedGeo resolves every address to the same place.
type fixedGeo struct{ loc geo.Location }

func (g fixedGeo) Resolve(context.Context, string) geo.Location { return g.loc }

type capturePublisher struct {
	mu     sync.Mutex
	clicks []events.ClickRecorded
}

func (p *capturePublisher) PublishClick(_ context.Context, c events.ClickRecorded) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clicks = append(p.clicks, c)
	return nil
}

type captureForwarder struct {
	mu     sync.Mutex
	events []events.Event
}

func (f *captureForwarder) Forward(_ string, evs ...events.Event) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, evs...)
	return true
}

func (f *fixture) redirector(failClosed bool, clicks repository.ClickRepository, pub ClickPublisher) *Redirector {
	if clicks == nil {
		clicks = f.clicks
	}
	return NewRedirector(f.registry, clicks, uaparser.New(),
		fixedGeo{geo.Location{Country: "India", State: "Karnataka", City: "Bengaluru", ISP: "Jio"}},
		pub, failClosed, zap.NewNop())
}
