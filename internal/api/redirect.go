package api

import (
	"errors"
	"html"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "github.com/axellelanca/campaignshortener/internal/errors"
	"github.com/axellelanca/campaignshortener/internal/services"
)

const notFoundPage = `<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>Link not found</title></head>
<body>
<h1>Invalid or expired link</h1>
<p>The link you followed does not exist or is no longer active.</p>
%LINK%
</body>
</html>
`

// RedirectHandler resolves /?r=<code>, records the click and answers 302.
// Unknown, inactive and expired codes get the HTML 404 page; a click that cannot be stored
// under the fail-closed policy gets 503.
func RedirectHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		code := strings.TrimSpace(c.Query("r"))
		if code == "" {
			notFound(c, d.Settings.DashboardURL)
			return
		}

		sessionID, _ := c.Cookie(d.Settings.SessionCookie)
		if sessionID == "" {
			sessionID = c.Query("session_id")
		}

		res, err := d.Redirector.Resolve(c.Request.Context(), code, services.RequestContext{
			IPAddress:  services.ClientIP(c.GetHeader("X-Forwarded-For"), c.Request.RemoteAddr),
			UserAgent:  c.GetHeader("User-Agent"),
			Referrer:   c.GetHeader("Referer"),
			SessionID:  sessionID,
			ReceivedAt: time.Now(),
		})
		if err != nil {
			if apperrors.KindOf(err) == apperrors.NotFound || errors.Is(err, apperrors.ErrShortCodeNotFound) {
				notFound(c, d.Settings.DashboardURL)
				return
			}
			d.Logger.Error("Redirect failed", zap.String("short_code", code), zap.Error(err))
			status, _ := StatusFor(err)
			c.String(status, "Service temporarily unavailable")
			return
		}

		if res.SessionMinted {
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(d.Settings.SessionCookie, res.SessionID, int(d.Settings.SessionTTL.Seconds()), "/", "", d.Settings.SecureCookies, true)
		}
		c.Redirect(http.StatusFound, res.URL)
	}
}

func notFound(c *gin.Context, dashboardURL string) {
	link := ""
	if dashboardURL != "" {
		link = `<p><a href="` + html.EscapeString(dashboardURL) + `">Go to the dashboard</a></p>`
	}
	page := strings.Replace(notFoundPage, "%LINK%", link, 1)
	c.Data(http.StatusNotFound, "text/html; charset=utf-8", []byte(page))
}

// TrackRequest is a journey event posted by a landing page.
type TrackRequest struct {
	SessionID string         `json:"session_id"`
	ShortCode string         `json:"short_code"`
	EventType string         `json:"event_type" binding:"required"`
	EventName string         `json:"event_name"`
	Params    map[string]any `json:"params"`
}

// TrackHandler records a journey event. The session comes from the cookie, then the body.
// A session the tracker has not seen yet is started when the body names its short code.
func TrackHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req TrackRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
			return
		}
		sessionID, _ := c.Cookie(d.Settings.SessionCookie)
		if sessionID == "" {
			sessionID = req.SessionID
		}
		if sessionID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "session_id is required"})
			return
		}

		ctx := c.Request.Context()
		ev, err := d.Journeys.TrackEvent(ctx, sessionID, req.EventType, req.EventName, req.Params)
		if errors.Is(err, apperrors.ErrSessionNotFound) && req.ShortCode != "" {
			if _, err = d.Campaigns.Lookup(ctx, req.ShortCode); err == nil {
				if _, err = d.Journeys.StartJourney(ctx, req.ShortCode, services.UserData{SessionID: sessionID}); err == nil {
					ev, err = d.Journeys.TrackEvent(ctx, sessionID, req.EventType, req.EventName, req.Params)
				}
			}
		}
		if err != nil {
			respondError(c, d.Logger, err)
			return
		}
		c.JSON(http.StatusCreated, ev)
	}
}
