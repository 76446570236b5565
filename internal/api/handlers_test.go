package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/axellelanca/campaignshortener/internal/export"
	"github.com/axellelanca/campaignshortener/internal/geo"
	"github.com/axellelanca/campaignshortener/internal/models"
	"github.com/axellelanca/campaignshortener/internal/repository"
	"github.com/axellelanca/campaignshortener/internal/services"
	"github.com/axellelanca/campaignshortener/internal/testutil"
	"github.com/axellelanca/campaignshortener/internal/uaparser"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

type testServer struct {
	router *gin.Engine
	deps   Deps
	token  string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.NewDB(t)
	campaignRepo := repository.NewCampaignRepository(db)
	clicks := repository.NewClickRepository(db)
	journeys := repository.NewJourneyRepository(db)
	logger := zap.NewNop()

	registry := services.NewCampaignService(campaignRepo, clicks, nil, nil, "https://go.example.com", logger)
	geoSvc := geo.NewService(nil, geo.Options{}, logger)
	auth := services.NewAuthService(repository.NewUserRepository(db), time.Hour, bcrypt.MinCost, logger)
	sqlDB, err := db.DB()
	require.NoError(t, err)

	d := Deps{
		Campaigns:  registry,
		Redirector: services.NewRedirector(registry, clicks, uaparser.New(), geoSvc, nil, false, logger),
		Aggregator: services.NewAggregator(repository.NewAnalyticsRepository(db), journeys, campaignRepo, logger).WithLocation(time.UTC),
		Journeys:   services.NewJourneyTracker(journeys, clicks, nil, logger),
		Auth:       auth,
		DB:         sqlDB,
		Settings: Settings{
			DashboardURL:      "https://dash.example.com",
			SessionCookie:     "session_id",
			SessionTTL:        30 * time.Minute,
			DefaultWindowDays: 30,
		},
		Logger: logger,
	}
	router := gin.New()
	SetupRoutes(router, d)

	ctx := context.Background()
	_, err = auth.CreateUser(ctx, "alice", "correct-horse", "acme", models.RoleAdmin)
	require.NoError(t, err)
	user, err := auth.Login(ctx, "alice", "correct-horse")
	require.NoError(t, err)

	return &testServer{router: router, deps: d, token: user.Token}
}

func (s *testServer) do(t *testing.T, method, path string, body any, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "192.0.2.10:4321"
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) createCampaign(t *testing.T, name string) *models.Campaign {
	t.Helper()
	c, err := s.deps.Campaigns.CreateShortURL(context.Background(), services.CreateCampaignInput{
		URL:          "https://shop.example.com/" + name,
		CampaignName: name,
		CampaignType: models.CampaignTypeEmail,
	})
	require.NoError(t, err)
	return c
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/health", nil, false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestRedirect_RecordsClickAndSetsCookie(t *testing.T) {
	s := newTestServer(t)
	c := s.createCampaign(t, "spring")

	req := httptest.NewRequest(http.MethodGet, "/?r="+c.ShortCode, nil)
	req.RemoteAddr = "192.0.2.10:4321"
	req.Header.Set("User-Agent", chromeUA)
	req.Header.Set("Referer", "https://www.google.com/search?q=shoes")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, c.OriginalURL, w.Header().Get("Location"))
	assert.Contains(t, w.Header().Get("Set-Cookie"), "session_id=")

	_, total, err := s.deps.Campaigns.GetCampaignStats(context.Background(), c.ShortCode)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestRedirect_KeepsExistingSessionCookie(t *testing.T) {
	s := newTestServer(t)
	c := s.createCampaign(t, "cookie")

	req := httptest.NewRequest(http.MethodGet, "/?r="+c.ShortCode, nil)
	req.RemoteAddr = "192.0.2.10:4321"
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "known-session"})
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Empty(t, w.Header().Get("Set-Cookie"))
}

func TestRedirect_UnknownCodeRendersNotFoundPage(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/?r=zzzzzz", "/"} {
		w := s.do(t, http.MethodGet, path, nil, false)
		assert.Equal(t, http.StatusNotFound, w.Code, path)
		assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
		assert.Contains(t, w.Body.String(), "Invalid or expired link")
		assert.Contains(t, w.Body.String(), "https://dash.example.com")
	}
}

func TestAuth_LoginAndMe(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/auth/login", gin.H{"username": "alice", "password": "nope-nope"}, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/auth/login", gin.H{"username": "ghost", "password": "correct-horse"}, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/auth/login", gin.H{"username": "alice"}, false)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/auth/login", gin.H{"username": "alice", "password": "correct-horse"}, false)
	require.Equal(t, http.StatusOK, w.Code)
	var login services.UserContext
	decode(t, w, &login)
	assert.NotEmpty(t, login.Token)

	w = s.do(t, http.MethodGet, "/api/v1/auth/me", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	var me services.UserContext
	decode(t, w, &me)
	assert.Equal(t, "alice", me.Username)
	assert.Equal(t, "acme", me.Organization)
	assert.Empty(t, me.Token)

	w = s.do(t, http.MethodGet, "/api/v1/campaigns", nil, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuth_Logout(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/auth/logout", nil, true)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/auth/me", nil, true)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCampaigns_CreateListGetDelete(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/campaigns", gin.H{
		"url":           "https://shop.example.com/sale",
		"campaign_name": "Summer Sale",
		"campaign_type": models.CampaignTypeSocialMedia,
		"utm_source":    "facebook",
	}, true)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created CampaignResponse
	decode(t, w, &created)
	assert.Equal(t, "Summer Sale", created.CampaignName)
	assert.Equal(t, "https://go.example.com/?r="+created.ShortCode, created.ShortURL)
	assert.Contains(t, created.OriginalURL, "utm_source=facebook")

	w = s.do(t, http.MethodPost, "/api/v1/campaigns", gin.H{
		"url":           "https://shop.example.com/other",
		"campaign_name": "Summer Sale",
	}, true)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "Campaign name already exists")

	w = s.do(t, http.MethodPost, "/api/v1/campaigns", gin.H{"url": "https://shop.example.com/x"}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/campaigns?search=summer", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Campaigns []CampaignResponse `json:"campaigns"`
		Count     int                `json:"count"`
	}
	decode(t, w, &list)
	assert.Equal(t, 1, list.Count)

	w = s.do(t, http.MethodGet, "/api/v1/campaigns/"+created.ShortCode, nil, true)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/campaigns/"+created.ShortCode+"/stats", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	var stats map[string]any
	decode(t, w, &stats)
	assert.EqualValues(t, 0, stats["total_clicks"])

	w = s.do(t, http.MethodPatch, "/api/v1/campaigns/"+created.ShortCode, gin.H{"is_active": false}, true)
	require.Equal(t, http.StatusOK, w.Code)
	var patched CampaignResponse
	decode(t, w, &patched)
	assert.False(t, patched.IsActive)

	w = s.do(t, http.MethodDelete, "/api/v1/campaigns/"+created.ShortCode, nil, true)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/campaigns/"+created.ShortCode, nil, true)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCampaigns_BatchCreate(t *testing.T) {
	s := newTestServer(t)
	s.createCampaign(t, "taken")

	w := s.do(t, http.MethodPost, "/api/v1/campaigns", gin.H{"campaigns": []gin.H{
		{"url": "https://shop.example.com/a", "campaign_name": "fresh"},
		{"url": "https://shop.example.com/b", "campaign_name": "taken"},
	}}, true)
	require.Equal(t, http.StatusMultiStatus, w.Code, w.Body.String())

	var resp BatchResponse
	decode(t, w, &resp)
	assert.Equal(t, BatchSummary{Total: 2, Successful: 1, Failed: 1}, resp.Summary)
	assert.True(t, resp.Results[0].Success)
	assert.Equal(t, "Campaign name already exists", resp.Results[1].Error)
}

func TestAnalytics_AfterRedirects(t *testing.T) {
	s := newTestServer(t)
	c := s.createCampaign(t, "analytics")

	for _, ua := range []string{chromeUA, chromeUA} {
		req := httptest.NewRequest(http.MethodGet, "/?r="+c.ShortCode, nil)
		req.RemoteAddr = "192.0.2.10:4321"
		req.Header.Set("User-Agent", ua)
		s.router.ServeHTTP(httptest.NewRecorder(), req)
	}

	w := s.do(t, http.MethodGet, "/api/v1/analytics?campaigns=analytics", nil, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var summary services.Summary
	decode(t, w, &summary)
	assert.Equal(t, int64(2), summary.TotalClicks)
	require.Len(t, summary.CampaignStats, 1)
	assert.Equal(t, c.ShortCode, summary.CampaignStats[0].ShortCode)

	w = s.do(t, http.MethodGet, "/api/v1/analytics/traffic-sources", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	var sources services.TrafficSources
	decode(t, w, &sources)
	assert.Equal(t, int64(2), sources.Sources[services.SourceDirect])

	w = s.do(t, http.MethodGet, "/api/v1/analytics/breakdown/browser", nil, true)
	assert.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, http.MethodGet, "/api/v1/analytics/breakdown/shoe_size", nil, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/analytics/hourly", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	var hourly struct {
		Hours []services.HourBucket `json:"hours"`
	}
	decode(t, w, &hourly)
	assert.Len(t, hourly.Hours, 24)

	w = s.do(t, http.MethodGet, "/api/v1/analytics/dashboard?days=7", nil, true)
	assert.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, http.MethodGet, "/api/v1/analytics/dashboard?days=-1", nil, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/analytics/recent?limit=1", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	var recent struct {
		Activities []repository.Activity `json:"activities"`
	}
	decode(t, w, &recent)
	assert.Len(t, recent.Activities, 1)

	w = s.do(t, http.MethodGet, "/api/v1/analytics?start_date=2024-05-10&end_date=2024-05-01", nil, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAnalytics_ScopedToOrganization(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	w := s.do(t, http.MethodPost, "/api/v1/campaigns", gin.H{
		"url":           "https://shop.example.com/acme",
		"campaign_name": "Acme Launch",
	}, true)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created CampaignResponse
	decode(t, w, &created)

	req := httptest.NewRequest(http.MethodGet, "/?r="+created.ShortCode, nil)
	req.RemoteAddr = "192.0.2.10:4321"
	s.router.ServeHTTP(httptest.NewRecorder(), req)

	_, err := s.deps.Auth.CreateUser(ctx, "bob", "globex-pass", "globex", models.RoleUser)
	require.NoError(t, err)
	bob, err := s.deps.Auth.Login(ctx, "bob", "globex-pass")
	require.NoError(t, err)

	var summary services.Summary
	w = s.do(t, http.MethodGet, "/api/v1/analytics", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &summary)
	assert.Equal(t, int64(1), summary.TotalClicks)

	adminToken := s.token
	s.token = bob.Token
	defer func() { s.token = adminToken }()

	w = s.do(t, http.MethodGet, "/api/v1/analytics", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	summary = services.Summary{}
	decode(t, w, &summary)
	assert.Zero(t, summary.TotalClicks)
	assert.Empty(t, summary.CampaignStats)

	w = s.do(t, http.MethodGet, "/api/v1/analytics/dashboard", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	var dash services.DashboardStats
	decode(t, w, &dash)
	assert.Zero(t, dash.TotalCampaigns)
	assert.Empty(t, dash.TopCampaigns)

	w = s.do(t, http.MethodGet, "/api/v1/analytics/recent", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"activities":[]}`, w.Body.String())
}

func TestAnalytics_ExportCSV(t *testing.T) {
	s := newTestServer(t)
	s.createCampaign(t, "export")

	w := s.do(t, http.MethodGet, "/api/v1/analytics/export?format=csv", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, export.ContentTypeCSV, w.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Disposition"), `attachment; filename="campaign_analytics_`))
	assert.True(t, strings.HasPrefix(w.Body.String(), "campaign_name,short_code"))

	w = s.do(t, http.MethodGet, "/api/v1/analytics/export?format=pdf", nil, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTrack_StartsJourneyAndFeedsFunnel(t *testing.T) {
	s := newTestServer(t)
	c := s.createCampaign(t, "journey")

	w := s.do(t, http.MethodPost, "/api/v1/track", gin.H{"session_id": "sess-1", "event_type": "page_view"}, false)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/track", gin.H{
		"session_id": "sess-1",
		"short_code": c.ShortCode,
		"event_type": models.JourneyPageView,
		"event_name": "landing",
	}, false)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/v1/track", gin.H{"session_id": "sess-1", "event_type": "teleport"}, false)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/journeys/sess-1/events", gin.H{"event_type": models.JourneyConversion}, true)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/v1/journeys/sess-1", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	var journey struct {
		Summary services.JourneySummary `json:"summary"`
		Metrics services.JourneyMetrics `json:"metrics"`
	}
	decode(t, w, &journey)
	assert.Equal(t, 3, journey.Summary.TotalEvents)
	assert.True(t, journey.Summary.ConversionAchieved)
	assert.True(t, journey.Metrics.Converted)

	w = s.do(t, http.MethodGet, "/api/v1/journeys/sess-1/funnel", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"session_id":"sess-1","stage":"conversion"}`, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/v1/analytics/funnel?campaigns=journey", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	var funnel struct {
		Stages []services.FunnelStage `json:"stages"`
	}
	decode(t, w, &funnel)
	require.Len(t, funnel.Stages, 3)
	for _, st := range funnel.Stages {
		assert.Equal(t, 1, st.Sessions, st.Stage)
	}

	w = s.do(t, http.MethodGet, "/api/v1/journeys/unknown", nil, true)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
