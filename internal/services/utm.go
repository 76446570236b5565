package services

import (
	"fmt"
	"net/url"
	"strings"

	apperrors "github.com/axellelanca/campaignshortener/internal/errors"
	"github.com/axellelanca/campaignshortener/internal/models"
)

// NormalizeURL trims raw, defaults the scheme to https and checks that the result is an
// absolute http(s) URL with a host. Applying it twice gives the same result.
func NormalizeURL(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", apperrors.ErrInvalidURL
	}
	lower := strings.ToLower(s)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		s = "https://" + s
	}

	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		return "", apperrors.ErrInvalidURL
	}
	if strings.ContainsAny(u.Hostname(), " \t") {
		return "", apperrors.ErrInvalidURL
	}
	return s, nil
}

type queryParam struct {
	key    string
	values []string
}

// parseOrderedQuery keeps the first-seen order of keys, which url.Values does not.
func parseOrderedQuery(raw string) ([]queryParam, error) {
	params := []queryParam{}
	index := map[string]int{}
	for _, part := range strings.Split(raw, "&") {
		if part == "" {
			continue
		}
		k, v, _ := strings.Cut(part, "=")
		key, err := url.QueryUnescape(k)
		if err != nil {
			return nil, err
		}
		value, err := url.QueryUnescape(v)
		if err != nil {
			return nil, err
		}
		if i, ok := index[key]; ok {
			params[i].values = append(params[i].values, value)
			continue
		}
		index[key] = len(params)
		params = append(params, queryParam{key: key, values: []string{value}})
	}
	return params, nil
}

func encodeOrderedQuery(params []queryParam) string {
	var b strings.Builder
	for _, p := range params {
		for _, v := range p.values {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(p.key))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}

// MergeUTM writes the non-empty UTM parameters into rawURL's query. A parameter already
// present keeps its position and takes the new value; new ones are appended in
// models.UTMKeys order. Merging the same UTM set twice is a no-op.
func MergeUTM(rawURL string, utm models.UTM) (string, error) {
	return rewriteUTM(rawURL, utm, nil)
}

// rewriteUTM is MergeUTM that also drops the listed keys.
func rewriteUTM(rawURL string, utm models.UTM, remove []string) (string, error) {
	if utm.IsZero() && len(remove) == 0 {
		return rawURL, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrInvalidURL, err)
	}
	params, err := parseOrderedQuery(u.RawQuery)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrInvalidURL, err)
	}

	if len(remove) > 0 {
		drop := map[string]bool{}
		for _, k := range remove {
			drop[k] = true
		}
		kept := params[:0]
		for _, p := range params {
			if !drop[p.key] {
				kept = append(kept, p)
			}
		}
		params = kept
	}

	for _, key := range models.UTMKeys {
		value := utm.Get(key)
		if value == "" {
			continue
		}
		replaced := false
		for i := range params {
			if params[i].key == key {
				params[i].values = []string{value}
				replaced = true
				break
			}
		}
		if !replaced {
			params = append(params, queryParam{key: key, values: []string{value}})
		}
	}

	u.RawQuery = encodeOrderedQuery(params)
	u.ForceQuery = false
	return u.String(), nil
}

// ApplyUTMChange moves rawURL from the old UTM set to the new one: parameters cleared in
// next are removed, the others merged.
func ApplyUTMChange(rawURL string, prev, next models.UTM) (string, error) {
	var remove []string
	for _, key := range models.UTMKeys {
		if prev.Get(key) != "" && next.Get(key) == "" {
			remove = append(remove, key)
		}
	}
	return rewriteUTM(rawURL, next, remove)
}
