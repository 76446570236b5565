package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/axellelanca/campaignshortener/internal/middleware"
	"github.com/axellelanca/campaignshortener/internal/models"
	"github.com/axellelanca/campaignshortener/internal/repository"
	"github.com/axellelanca/campaignshortener/internal/services"
)

// CreateCampaignRequest holds one campaign, or several under "campaigns".
type CreateCampaignRequest struct {
	services.CreateCampaignInput
	Campaigns []services.CreateCampaignInput `json:"campaigns"`
}

// CampaignResponse is a campaign plus its public short URL.
type CampaignResponse struct {
	*models.Campaign
	ShortURL string `json:"short_url"`
}

// BatchResult is one entry of a batch creation.
type BatchResult struct {
	CampaignName string            `json:"campaign_name"`
	Success      bool              `json:"success"`
	Campaign     *CampaignResponse `json:"campaign,omitempty"`
	Error        string            `json:"error,omitempty"`
}

type BatchSummary struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

type BatchResponse struct {
	Results []BatchResult `json:"results"`
	Summary BatchSummary  `json:"summary"`
}

func toResponse(d Deps, c *models.Campaign) *CampaignResponse {
	return &CampaignResponse{Campaign: c, ShortURL: d.Campaigns.ShortURL(c.ShortCode)}
}

// organizationScope limits non-admin users to their own organization.
func organizationScope(c *gin.Context) *uint {
	user, ok := middleware.CurrentUser(c)
	if !ok || user.Role == models.RoleAdmin || user.OrganizationID == 0 {
		return nil
	}
	id := user.OrganizationID
	return &id
}

// CreateCampaignHandler creates one campaign (201) or a batch (201, 207 on partial failure,
// 400 when every entry failed).
func CreateCampaignHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateCampaignRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
			return
		}

		var orgID *uint
		if user, ok := middleware.CurrentUser(c); ok && user.OrganizationID != 0 {
			id := user.OrganizationID
			orgID = &id
		}

		if len(req.Campaigns) == 0 {
			in := req.CreateCampaignInput
			in.OrganizationID = orgID
			campaign, err := d.Campaigns.CreateShortURL(c.Request.Context(), in)
			if err != nil {
				respondError(c, d.Logger, err)
				return
			}
			c.JSON(http.StatusCreated, toResponse(d, campaign))
			return
		}

		resp := BatchResponse{Results: make([]BatchResult, 0, len(req.Campaigns))}
		for _, in := range req.Campaigns {
			in.OrganizationID = orgID
			result := BatchResult{CampaignName: in.CampaignName}
			campaign, err := d.Campaigns.CreateShortURL(c.Request.Context(), in)
			if err != nil {
				_, result.Error = StatusFor(err)
				resp.Summary.Failed++
			} else {
				result.Success = true
				result.Campaign = toResponse(d, campaign)
				resp.Summary.Successful++
			}
			resp.Results = append(resp.Results, result)
		}
		resp.Summary.Total = len(req.Campaigns)

		status := http.StatusCreated
		switch {
		case resp.Summary.Successful == 0:
			status = http.StatusBadRequest
		case resp.Summary.Failed > 0:
			status = http.StatusMultiStatus
		}
		c.JSON(status, resp)
	}
}

func ListCampaignsHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		offset, _ := strconv.Atoi(c.Query("offset"))
		campaigns, err := d.Campaigns.ListCampaigns(c.Request.Context(), repository.CampaignFilter{
			Type:           c.Query("type"),
			Status:         c.Query("status"),
			Search:         c.Query("search"),
			OrganizationID: organizationScope(c),
			Limit:          limit,
			Offset:         offset,
		})
		if err != nil {
			respondError(c, d.Logger, err)
			return
		}
		out := make([]*CampaignResponse, 0, len(campaigns))
		for i := range campaigns {
			out = append(out, toResponse(d, &campaigns[i]))
		}
		c.JSON(http.StatusOK, gin.H{"campaigns": out, "count": len(out)})
	}
}

// loadCampaign fetches :code and hides campaigns of other organizations.
func loadCampaign(c *gin.Context, d Deps) (*models.Campaign, bool) {
	campaign, err := d.Campaigns.GetCampaign(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondError(c, d.Logger, err)
		return nil, false
	}
	if scope := organizationScope(c); scope != nil {
		if campaign.OrganizationID == nil || *campaign.OrganizationID != *scope {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Short URL not found"})
			return nil, false
		}
	}
	return campaign, true
}

func GetCampaignHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		campaign, ok := loadCampaign(c, d)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, toResponse(d, campaign))
	}
}

// GetCampaignStatsHandler returns the campaign's counters and its analytics summary.
func GetCampaignStatsHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := loadCampaign(c, d); !ok {
			return
		}
		campaign, totalClicks, err := d.Campaigns.GetCampaignStats(c.Request.Context(), c.Param("code"))
		if err != nil {
			respondError(c, d.Logger, err)
			return
		}
		summary, err := d.Aggregator.Summary(c.Request.Context(), repository.AnalyticsFilter{ShortCodes: []string{campaign.ShortCode}})
		if err != nil {
			respondError(c, d.Logger, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"short_code":      campaign.ShortCode,
			"campaign_name":   campaign.CampaignName,
			"original_url":    campaign.OriginalURL,
			"short_url":       d.Campaigns.ShortURL(campaign.ShortCode),
			"total_clicks":    totalClicks,
			"unique_visitors": campaign.UniqueVisitors,
			"last_clicked_at": campaign.LastClickedAt,
			"created_at":      campaign.CreatedAt,
			"summary":         summary,
		})
	}
}

func UpdateCampaignHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := loadCampaign(c, d); !ok {
			return
		}
		var patch services.CampaignPatch
		if err := c.ShouldBindJSON(&patch); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
			return
		}
		campaign, err := d.Campaigns.UpdateCampaign(c.Request.Context(), c.Param("code"), patch)
		if err != nil {
			respondError(c, d.Logger, err)
			return
		}
		c.JSON(http.StatusOK, toResponse(d, campaign))
	}
}

func DeleteCampaignHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := loadCampaign(c, d); !ok {
			return
		}
		if err := d.Campaigns.DeleteCampaign(c.Request.Context(), c.Param("code")); err != nil {
			respondError(c, d.Logger, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
