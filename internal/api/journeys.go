package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// JourneyEventRequest is an event posted for a known session by an authenticated client.
type JourneyEventRequest struct {
	EventType string         `json:"event_type" binding:"required"`
	EventName string         `json:"event_name"`
	Params    map[string]any `json:"params"`
}

func TrackJourneyEventHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req JourneyEventRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
			return
		}
		ev, err := d.Journeys.TrackEvent(c.Request.Context(), c.Param("session"), req.EventType, req.EventName, req.Params)
		if err != nil {
			respondError(c, d.Logger, err)
			return
		}
		c.JSON(http.StatusCreated, ev)
	}
}

// JourneyHandler returns the session's events with its metrics, anomalies and recommendations.
func JourneyHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		session := c.Param("session")

		summary, err := d.Journeys.JourneySummary(ctx, session)
		if err != nil {
			respondError(c, d.Logger, err)
			return
		}
		metrics, err := d.Journeys.Metrics(ctx, session)
		if err != nil {
			respondError(c, d.Logger, err)
			return
		}
		anomalies, err := d.Journeys.Anomalies(ctx, session)
		if err != nil {
			respondError(c, d.Logger, err)
			return
		}
		recs, err := d.Journeys.Recommendations(ctx, session)
		if err != nil {
			respondError(c, d.Logger, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"summary":         summary,
			"metrics":         metrics,
			"anomalies":       anomalies,
			"recommendations": recs,
		})
	}
}

func JourneyFunnelHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		stage, err := d.Journeys.FunnelProgression(c.Request.Context(), c.Param("session"), listParam(c, "stages"))
		if err != nil {
			respondError(c, d.Logger, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"session_id": c.Param("session"), "stage": stage})
	}
}
