package cache

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// CodeFilter is a thread-safe bloom filter of short codes known to exist.
// A negative answer is definitive, a positive one may be a false positive.
type CodeFilter struct {
	filter *bloom.BloomFilter
	mu     sync.RWMutex
}

func NewCodeFilter(capacity uint, fpRate float64) *CodeFilter {
	if capacity == 0 {
		capacity = 100000
	}
	if fpRate <= 0 || fpRate >= 1 {
		fpRate = 0.001
	}
	return &CodeFilter{filter: bloom.NewWithEstimates(capacity, fpRate)}
}

func (f *CodeFilter) Add(code string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filter.AddString(code)
}

func (f *CodeFilter) AddBatch(codes []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, code := range codes {
		f.filter.AddString(code)
	}
}

// MightContain returns false only for codes that were never added.
func (f *CodeFilter) MightContain(code string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.filter.TestString(code)
}
