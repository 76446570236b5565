package geo

import "github.com/cespare/xxhash/v2"

// Region is one weighted row of the fallback table.
type Region struct {
	State  string
	Weight uint64
	Cities []string
}

// ISPShare is one weighted ISP of the fallback table.
type ISPShare struct {
	Name   string
	Weight uint64
}

// FallbackTable maps an IP to a plausible location when no provider answer is available.
// The mapping is a pure function of the IP, so the same address always lands in the same
// place and, over many addresses, the weights are preserved.
type FallbackTable struct {
	Country     string
	Regions     []Region
	ISPs        []ISPShare
	regionTotal uint64
	ispTotal    uint64
}

func NewFallbackTable(country string, regions []Region, isps []ISPShare) *FallbackTable {
	t := &FallbackTable{Country: country, Regions: regions, ISPs: isps}
	for _, r := range regions {
		t.regionTotal += r.Weight
	}
	for _, i := range isps {
		t.ispTotal += i.Weight
	}
	return t
}

// DefaultFallback reflects the audience of the product's first deployment.
func DefaultFallback() *FallbackTable {
	return NewFallbackTable("India",
		[]Region{
			{State: "Maharashtra", Weight: 18, Cities: []string{"Mumbai", "Pune", "Nagpur", "Nashik"}},
			{State: "Karnataka", Weight: 14, Cities: []string{"Bengaluru", "Mysuru", "Mangaluru"}},
			{State: "Delhi", Weight: 12, Cities: []string{"New Delhi"}},
			{State: "Tamil Nadu", Weight: 11, Cities: []string{"Chennai", "Coimbatore", "Madurai"}},
			{State: "Telangana", Weight: 9, Cities: []string{"Hyderabad", "Warangal"}},
			{State: "Uttar Pradesh", Weight: 9, Cities: []string{"Lucknow", "Noida", "Kanpur"}},
			{State: "Gujarat", Weight: 8, Cities: []string{"Ahmedabad", "Surat", "Vadodara"}},
			{State: "West Bengal", Weight: 7, Cities: []string{"Kolkata", "Howrah"}},
			{State: "Rajasthan", Weight: 6, Cities: []string{"Jaipur", "Udaipur"}},
			{State: "Kerala", Weight: 6, Cities: []string{"Kochi", "Thiruvananthapuram"}},
		},
		[]ISPShare{
			{Name: "Reliance Jio", Weight: 40},
			{Name: "Bharti Airtel", Weight: 32},
			{Name: "Vodafone Idea", Weight: 18},
			{Name: "BSNL", Weight: 10},
		},
	)
}

// Locate picks the location for ip. Independent bits of the hash drive the region, the city
// and the ISP so the three choices do not correlate.
func (t *FallbackTable) Locate(ip string) Location {
	loc := Location{Country: t.Country, State: "Unknown", City: "Unknown", ISP: "Unknown"}
	h := xxhash.Sum64String(ip)

	if t.regionTotal > 0 {
		r := pickRegion(t.Regions, (h&0xffffffff)%t.regionTotal)
		loc.State = r.State
		if len(r.Cities) > 0 {
			loc.City = r.Cities[((h>>32)&0xffff)%uint64(len(r.Cities))]
		}
	}
	if t.ispTotal > 0 {
		loc.ISP = pickISP(t.ISPs, (h>>48)%t.ispTotal)
	}
	return loc
}

func pickRegion(regions []Region, n uint64) Region {
	for _, r := range regions {
		if n < r.Weight {
			return r
		}
		n -= r.Weight
	}
	return regions[len(regions)-1]
}

func pickISP(isps []ISPShare, n uint64) string {
	for _, i := range isps {
		if n < i.Weight {
			return i.Name
		}
		n -= i.Weight
	}
	return isps[len(isps)-1].Name
}
