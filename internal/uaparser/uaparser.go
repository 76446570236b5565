// Package uaparser turns a User-Agent header into the device fields stored on a click.
package uaparser

import (
	"strings"

	"github.com/mssola/useragent"
)

const (
	DeviceDesktop = "Desktop"
	DeviceMobile  = "Mobile"
	DeviceTablet  = "Tablet"
	DeviceOther   = "Other"

	Unknown = "Unknown"
)

// Agent is the parsed form of a User-Agent string.
type Agent struct {
	DeviceType     string `json:"device_type"`
	Browser        string `json:"browser"`
	BrowserVersion string `json:"browser_version"`
	OS             string `json:"os"`
	OSVersion      string `json:"os_version"`
	IsMobile       bool   `json:"is_mobile"`
	IsTablet       bool   `json:"is_tablet"`
	IsPC           bool   `json:"is_pc"`
	IsBot          bool   `json:"is_bot"`
}

// Parsed reports whether anything beyond the defaults was recognised.
func (a Agent) Parsed() bool {
	return a.Browser != Unknown || a.OS != Unknown
}

// Parser is stateless and safe for concurrent use.
type Parser struct{}

func New() Parser { return Parser{} }

// Parse never fails: empty or unrecognised input yields Unknown browser and OS on an Other device.
func (Parser) Parse(raw string) Agent {
	agent := Agent{DeviceType: DeviceOther, Browser: Unknown, OS: Unknown}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return agent
	}

	ua := useragent.New(raw)
	lower := strings.ToLower(raw)

	if name, version := ua.Browser(); name != "" && looksLikeBrowser(lower) {
		agent.Browser = name
		agent.BrowserVersion = version
	}

	osInfo := ua.OSInfo()
	agent.OS, agent.OSVersion = normalizeOS(lower, osInfo.Name, osInfo.Version)
	agent.IsBot = ua.Bot()

	switch {
	case isTablet(lower):
		agent.DeviceType = DeviceTablet
		agent.IsTablet = true
	case ua.Mobile() || strings.Contains(lower, "mobile"):
		agent.DeviceType = DeviceMobile
		agent.IsMobile = true
	case agent.IsBot:
		agent.DeviceType = DeviceOther
	case isDesktopOS(agent.OS):
		agent.DeviceType = DeviceDesktop
		agent.IsPC = true
	}
	return agent
}

// looksLikeBrowser filters out single-token strings that the library echoes back as a
// browser name.
func looksLikeBrowser(lower string) bool {
	return strings.Contains(lower, "mozilla/") || strings.Contains(lower, "opera")
}

func isTablet(lower string) bool {
	if strings.Contains(lower, "ipad") || strings.Contains(lower, "tablet") || strings.Contains(lower, "kindle") {
		return true
	}
	return strings.Contains(lower, "android") && !strings.Contains(lower, "mobile")
}

func isDesktopOS(os string) bool {
	switch os {
	case "Windows", "macOS", "Linux", "Chrome OS":
		return true
	}
	return false
}

// normalizeOS folds the library's platform names into a small stable set.
func normalizeOS(lower, name, version string) (string, string) {
	switch {
	case strings.Contains(lower, "iphone") || strings.Contains(lower, "ipad") || strings.Contains(lower, "ipod"):
		return "iOS", version
	case strings.Contains(lower, "android"):
		return "Android", version
	case strings.Contains(lower, "cros"):
		return "Chrome OS", version
	case strings.Contains(lower, "windows"):
		return "Windows", version
	case strings.Contains(lower, "mac os x") || strings.Contains(lower, "macintosh"):
		return "macOS", version
	case strings.Contains(lower, "linux") || strings.Contains(lower, "x11"):
		return "Linux", version
	}
	if name != "" && looksLikeBrowser(lower) {
		return name, version
	}
	return Unknown, ""
}
