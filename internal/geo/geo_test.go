package geo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubProvider struct {
	calls atomic.Int32
	loc   *Location
	err   error
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Lookup(ctx context.Context, ip string) (*Location, error) {
	p.calls.Add(1)
	return p.loc, p.err
}

func TestResolve_LocalAddressesUseFallback(t *testing.T) {
	provider := &stubProvider{loc: &Location{Country: "Nowhere"}}
	svc := NewService(provider, Options{}, zap.NewNop())

	for _, ip := range []string{"", "127.0.0.1", "10.0.0.7", "192.168.1.20", "::1", "not-an-ip"} {
		loc := svc.Resolve(context.Background(), ip)
		assert.Equal(t, "India", loc.Country, ip)
		assert.NotEmpty(t, loc.State, ip)
	}
	assert.Zero(t, provider.calls.Load())
}

func TestResolve_FallbackIsDeterministic(t *testing.T) {
	svc := NewService(nil, Options{}, zap.NewNop())
	first := svc.Resolve(context.Background(), "203.0.113.9")
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, svc.Resolve(context.Background(), "203.0.113.9"))
	}
}

func TestResolve_ProviderErrorFallsBack(t *testing.T) {
	provider := &stubProvider{err: errors.New("boom")}
	svc := NewService(provider, Options{}, zap.NewNop())

	loc := svc.Resolve(context.Background(), "8.8.8.8")
	assert.Equal(t, DefaultFallback().Locate("8.8.8.8"), loc)
}

func TestResolve_BreakerOpensAfterFailures(t *testing.T) {
	provider := &stubProvider{err: errors.New("down")}
	svc := NewService(provider, Options{}, zap.NewNop())

	for i := 0; i < 10; i++ {
		svc.Resolve(context.Background(), fmt.Sprintf("8.8.8.%d", i+1))
	}
	// Five consecutive failures trip the breaker; later calls never reach the provider.
	assert.EqualValues(t, 5, provider.calls.Load())
}

func TestResolve_ProviderSuccessIsMemoized(t *testing.T) {
	provider := &stubProvider{loc: &Location{Country: "United States", State: "California", City: "Mountain View"}}
	svc := NewService(provider, Options{}, zap.NewNop())

	loc := svc.Resolve(context.Background(), "8.8.8.8")
	assert.Equal(t, Location{Country: "United States", State: "California", City: "Mountain View", ISP: "Unknown"}, loc)
	svc.Resolve(context.Background(), "8.8.8.8")
	assert.EqualValues(t, 1, provider.calls.Load())
}

func TestIPAPIProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/1.2.3.4" {
			fmt.Fprint(w, `{"status":"success","country":"India","regionName":"Karnataka","city":"Bengaluru","isp":"Bharti Airtel","query":"1.2.3.4"}`)
			return
		}
		fmt.Fprint(w, `{"status":"fail","message":"reserved range"}`)
	}))
	defer srv.Close()

	p := NewIPAPIProvider(srv.URL, time.Second)

	loc, err := p.Lookup(context.Background(), "1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, &Location{Country: "India", State: "Karnataka", City: "Bengaluru", ISP: "Bharti Airtel"}, loc)

	_, err = p.Lookup(context.Background(), "5.6.7.8")
	assert.Error(t, err)

	_, err = p.Lookup(context.Background(), "garbage")
	assert.Error(t, err)
}

func TestIPAPIProvider_TimeoutFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		fmt.Fprint(w, `{"status":"success","country":"Late"}`)
	}))
	defer srv.Close()

	svc := NewService(NewIPAPIProvider(srv.URL, time.Second), Options{Timeout: 20 * time.Millisecond}, zap.NewNop())
	loc := svc.Resolve(context.Background(), "8.8.4.4")
	assert.Equal(t, "India", loc.Country)
}

func TestFallbackTable_PreservesWeights(t *testing.T) {
	table := NewFallbackTable("Testland",
		[]Region{{State: "Big", Weight: 3, Cities: []string{"A"}}, {State: "Small", Weight: 1, Cities: []string{"B"}}},
		[]ISPShare{{Name: "OnlyISP", Weight: 1}},
	)

	counts := map[string]int{}
	const n = 20000
	for i := 0; i < n; i++ {
		counts[table.Locate(fmt.Sprintf("100.%d.%d.%d", i/65536, (i/256)%256, i%256)).State]++
	}
	assert.InDelta(t, 0.75, float64(counts["Big"])/n, 0.03)
	assert.InDelta(t, 0.25, float64(counts["Small"])/n, 0.03)
}
