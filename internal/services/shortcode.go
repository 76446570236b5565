package services

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// charset defines the character set used for generating short codes.
// 62^6 gives ~56 billion possible 6-character codes.
const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// ShortCodeLength is the length of every allocated code.
const ShortCodeLength = 6

// knownCodeSkips bounds how many bloom-positive draws are skipped before a candidate is
// handed to the store anyway; the store's unique index has the final word.
const knownCodeSkips = 3

// KnownCodes is the subset of the bloom filter the allocator needs.
type KnownCodes interface {
	MightContain(code string) bool
}

// ShortCodeAllocator draws codes uniformly from charset with crypto/rand.
type ShortCodeAllocator struct {
	length int
	known  KnownCodes
}

func NewShortCodeAllocator(known KnownCodes) *ShortCodeAllocator {
	return &ShortCodeAllocator{length: ShortCodeLength, known: known}
}

// GenerateShortCode generates a cryptographically secure random code of the given length.
func GenerateShortCode(length int) (string, error) {
	code := make([]byte, length)
	for i := range code {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", fmt.Errorf("failed to generate random number: %w", err)
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}

// Next returns a candidate code, skipping codes the filter already knows about.
func (a *ShortCodeAllocator) Next() (string, error) {
	var code string
	for i := 0; i <= knownCodeSkips; i++ {
		c, err := GenerateShortCode(a.length)
		if err != nil {
			return "", err
		}
		code = c
		if a.known == nil || !a.known.MightContain(code) {
			break
		}
	}
	return code, nil
}

// IsValidShortCode reports whether code has the allocator's shape.
func IsValidShortCode(code string) bool {
	if len(code) != ShortCodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}
