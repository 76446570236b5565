package services

import (
	"net/url"
	"strings"
)

// Traffic source buckets.
const (
	SourceDirect    = "Direct"
	SourceGoogle    = "Google"
	SourceFacebook  = "Facebook"
	SourceTwitter   = "Twitter"
	SourceLinkedIn  = "LinkedIn"
	SourceInstagram = "Instagram"
	SourceOther     = "Other"
)

// TrafficSourceOrder is the order sources are reported in.
var TrafficSourceOrder = []string{
	SourceDirect, SourceGoogle, SourceFacebook, SourceTwitter, SourceLinkedIn, SourceInstagram, SourceOther,
}

var sourceHosts = []struct {
	needle string
	source string
}{
	{"google", SourceGoogle},
	{"facebook", SourceFacebook},
	{"fb.com", SourceFacebook},
	{"twitter", SourceTwitter},
	{"x.com", SourceTwitter},
	{"t.co", SourceTwitter},
	{"linkedin", SourceLinkedIn},
	{"lnkd.in", SourceLinkedIn},
	{"instagram", SourceInstagram},
}

// ClassifyReferrer maps a referrer to exactly one traffic source.
func ClassifyReferrer(referrer string) string {
	referrer = strings.TrimSpace(referrer)
	if referrer == "" {
		return SourceDirect
	}
	host := referrerHost(referrer)
	if host == "" {
		return SourceOther
	}
	for _, s := range sourceHosts {
		if host == s.needle || strings.HasSuffix(host, "."+s.needle) ||
			(!strings.Contains(s.needle, ".") && strings.Contains(host, s.needle)) {
			return s.source
		}
	}
	return SourceOther
}

func referrerHost(referrer string) string {
	raw := referrer
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
