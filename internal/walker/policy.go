package walker

import (
	"crypto/rand"
	"math/big"

	"github.com/denebu/discord-chat-cleaner/pkg/apierr"
)

// PolicyMode selects how message content is handled before deletion
type PolicyMode string

const (
	// PolicyNone deletes without touching content
	PolicyNone PolicyMode = "none"
	// PolicyFixed overwrites content with a fixed string first
	PolicyFixed PolicyMode = "fixed"
	// PolicyRandom overwrites content with a fresh random string first
	PolicyRandom PolicyMode = "random"
)

// replacementCharset is what random replacements are drawn from. Spaces are
// repeated to weight them, so output reads like mashed text rather than a
// single token.
const replacementCharset = "0123456789" +
	"abcdefghijklmnopqrstuvwxyz" +
	"ABCDEFGHIJKLMNOPQRSTUVWXYZ" +
	"        .,!"

// ReplacementPolicy decides the content overwrite applied at most once per
// message, before its delete
type ReplacementPolicy struct {
	Mode PolicyMode
	// Fixed is the literal replacement for PolicyFixed
	Fixed string
	// MinLength/MaxLength bound the generated length for PolicyRandom
	MinLength int
	MaxLength int
}

// DefaultReplacementPolicy returns the no-op policy
func DefaultReplacementPolicy() ReplacementPolicy {
	return ReplacementPolicy{
		Mode:      PolicyNone,
		MinLength: 5,
		MaxLength: 30,
	}
}

// Validate checks the policy before any remote call is made
func (p ReplacementPolicy) Validate() error {
	switch p.Mode {
	case PolicyNone:
		return nil
	case PolicyFixed:
		if p.Fixed == "" {
			return apierr.NewValidationError("fixed replacement policy requires a replacement string")
		}
		return nil
	case PolicyRandom:
		if p.MinLength < 1 || p.MaxLength < p.MinLength {
			return apierr.NewValidationError("random replacement policy requires 1 <= min length <= max length")
		}
		return nil
	}
	return apierr.NewValidationError(`replacement policy must be "none", "fixed" or "random"`)
}

// Replacement produces the content to write before deleting. The second
// return is false for PolicyNone. Random replacements are regenerated on
// every call, never reused across messages.
func (p ReplacementPolicy) Replacement() (string, bool) {
	switch p.Mode {
	case PolicyFixed:
		return p.Fixed, true
	case PolicyRandom:
		return randomString(p.MinLength, p.MaxLength), true
	}
	return "", false
}

// randomString generates a string of length in [minLen, maxLen] drawn from
// replacementCharset
func randomString(minLen, maxLen int) string {
	length := minLen
	if maxLen > minLen {
		length += randomInt(maxLen - minLen + 1)
	}
	out := make([]byte, length)
	for i := range out {
		out[i] = replacementCharset[randomInt(len(replacementCharset))]
	}
	return string(out)
}

// randomInt returns a uniform value in [0, n)
func randomInt(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(v.Int64())
}
