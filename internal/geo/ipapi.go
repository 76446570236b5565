package geo

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// DefaultIPAPIURL is the free ip-api.com JSON endpoint (no API key, 45 requests/minute).
const DefaultIPAPIURL = "http://ip-api.com/json"

// IPAPIProvider implements Provider using ip-api.com.
type IPAPIProvider struct {
	client  *http.Client
	baseURL string
}

// ipAPIResponse represents the JSON response from ip-api.com
type ipAPIResponse struct {
	Status     string `json:"status"`  // "success" or "fail"
	Message    string `json:"message"` // Error message if status is "fail"
	Country    string `json:"country"`
	RegionName string `json:"regionName"`
	City       string `json:"city"`
	ISP        string `json:"isp"`
	Query      string `json:"query"`
}

func NewIPAPIProvider(baseURL string, timeout time.Duration) *IPAPIProvider {
	if baseURL == "" {
		baseURL = DefaultIPAPIURL
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &IPAPIProvider{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (p *IPAPIProvider) Name() string { return "ip-api" }

// Lookup queries ip-api.com for one address.
func (p *IPAPIProvider) Lookup(ctx context.Context, ipAddress string) (*Location, error) {
	if net.ParseIP(ipAddress) == nil {
		return nil, fmt.Errorf("invalid IP address: %s", ipAddress)
	}

	url := fmt.Sprintf("%s/%s?fields=status,message,country,regionName,city,isp,query", p.baseURL, ipAddress)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ip-api request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ip-api returned status %d", resp.StatusCode)
	}

	var result ipAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode ip-api response: %w", err)
	}
	if result.Status != "success" {
		return nil, fmt.Errorf("ip-api lookup failed: %s", result.Message)
	}

	return &Location{
		Country: result.Country,
		State:   result.RegionName,
		City:    result.City,
		ISP:     result.ISP,
	}, nil
}
