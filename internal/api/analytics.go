package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/axellelanca/campaignshortener/internal/export"
	"github.com/axellelanca/campaignshortener/internal/repository"
)

// listParam accepts both ?k=a,b and ?k=a&k=b.
func listParam(c *gin.Context, key string) []string {
	var out []string
	for _, raw := range c.QueryArray(key) {
		for _, v := range strings.Split(raw, ",") {
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}

// filterFromQuery builds the analytics filter from start_date, end_date, campaigns and states,
// limited to the caller's organization unless the caller is an admin.
func filterFromQuery(c *gin.Context, d Deps) (repository.AnalyticsFilter, bool) {
	f, err := d.Aggregator.NewFilter(c.Query("start_date"), c.Query("end_date"), listParam(c, "campaigns"), listParam(c, "states"))
	if err != nil {
		respondError(c, d.Logger, err)
		return f, false
	}
	f.OrganizationID = organizationScope(c)
	return f, true
}

// SummaryHandler returns the filtered analytics summary.
func SummaryHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		f, ok := filterFromQuery(c, d)
		if !ok {
			return
		}
		summary, err := d.Aggregator.Summary(c.Request.Context(), f)
		if err != nil {
			respondError(c, d.Logger, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

func DashboardHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		days := d.Settings.DefaultWindowDays
		if raw := c.Query("days"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "days must be a positive integer"})
				return
			}
			days = n
		}
		stats, err := d.Aggregator.DashboardStats(c.Request.Context(), days, organizationScope(c))
		if err != nil {
			respondError(c, d.Logger, err)
			return
		}
		c.JSON(http.StatusOK, stats)
	}
}

func TrafficSourcesHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		f, ok := filterFromQuery(c, d)
		if !ok {
			return
		}
		sources, err := d.Aggregator.TrafficSources(c.Request.Context(), f)
		if err != nil {
			respondError(c, d.Logger, err)
			return
		}
		c.JSON(http.StatusOK, sources)
	}
}

// BreakdownHandler groups clicks by :dimension (device_type, browser, os, state, country,
// city, campaign, source).
func BreakdownHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		dim, ok := repository.ParseDimension(c.Param("dimension"))
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown dimension " + strconv.Quote(c.Param("dimension"))})
			return
		}
		f, ok := filterFromQuery(c, d)
		if !ok {
			return
		}
		rows, err := d.Aggregator.Breakdown(c.Request.Context(), f, dim)
		if err != nil {
			respondError(c, d.Logger, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"dimension": dim, "rows": rows})
	}
}

func CampaignPerformanceHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		f, ok := filterFromQuery(c, d)
		if !ok {
			return
		}
		stats, err := d.Aggregator.CampaignPerformance(c.Request.Context(), f)
		if err != nil {
			respondError(c, d.Logger, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"campaigns": stats})
	}
}

func RecentActivitiesHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		f, ok := filterFromQuery(c, d)
		if !ok {
			return
		}
		limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
		if err != nil || limit <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		activities, err := d.Aggregator.RecentActivities(c.Request.Context(), f, limit)
		if err != nil {
			respondError(c, d.Logger, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"activities": activities})
	}
}

func HourlyHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		f, ok := filterFromQuery(c, d)
		if !ok {
			return
		}
		hours, err := d.Aggregator.HourlyDistribution(c.Request.Context(), f)
		if err != nil {
			respondError(c, d.Logger, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"hours": hours})
	}
}

// FunnelHandler computes session progression through ?stages (default funnel when absent).
func FunnelHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		f, ok := filterFromQuery(c, d)
		if !ok {
			return
		}
		stages, err := d.Aggregator.Funnel(c.Request.Context(), f, listParam(c, "stages"))
		if err != nil {
			respondError(c, d.Logger, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"stages": stages})
	}
}

// ExportHandler streams the filtered summary as CSV or XLSX.
func ExportHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		format, err := export.ParseFormat(c.Query("format"))
		if err != nil {
			respondError(c, d.Logger, err)
			return
		}
		f, ok := filterFromQuery(c, d)
		if !ok {
			return
		}
		ctx := c.Request.Context()
		summary, err := d.Aggregator.Summary(ctx, f)
		if err != nil {
			respondError(c, d.Logger, err)
			return
		}
		sources, err := d.Aggregator.TrafficSources(ctx, f)
		if err != nil {
			respondError(c, d.Logger, err)
			return
		}

		name, contentType, data, err := export.Render(format, export.Report{
			GeneratedAt: time.Now(),
			Summary:     summary,
			Sources:     sources,
		})
		if err != nil {
			respondError(c, d.Logger, err)
			return
		}
		c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
		c.Data(http.StatusOK, contentType, data)
	}
}
