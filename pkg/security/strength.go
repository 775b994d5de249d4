// Package security evaluates the guessability of vault secrets. The
// rating is advisory: the manager accepts any secret within the length
// bounds, and the CLI surfaces the rating when a new vault is created.
package security

import "unicode"

// Strength is the rated guessability of a secret.
type Strength int

const (
	// StrengthWeak indicates a secret trivially covered by a small
	// guess space: short, single character class, or a common pattern.
	StrengthWeak Strength = iota
	// StrengthFair indicates a minimally acceptable secret.
	StrengthFair
	// StrengthGood indicates a good secret.
	StrengthGood
	// StrengthStrong indicates a strong secret.
	StrengthStrong
)

// String returns a human-readable name for the strength level.
func (s Strength) String() string {
	switch s {
	case StrengthWeak:
		return "Weak"
	case StrengthFair:
		return "Fair"
	case StrengthGood:
		return "Good"
	case StrengthStrong:
		return "Strong"
	default:
		return "Unknown"
	}
}

// Evaluate rates a secret. Length dominates per NIST SP 800-63B; the
// rating is capped for secrets that are a single repeated rune or a
// straight digit run, the patterns people actually pick for PINs.
func Evaluate(secret string) Strength {
	runes := []rune(secret)

	if allSame(runes) || digitRun(runes) {
		return StrengthWeak
	}

	base := lengthRating(len(runes))

	// A short all-digit secret draws from a 10-symbol alphabet; cap it
	// one level down. Length 14+ all-digit is already a large space.
	if base > StrengthWeak && base < StrengthStrong && allDigits(runes) {
		base--
	}
	return base
}

func lengthRating(n int) Strength {
	switch {
	case n >= 16:
		return StrengthStrong
	case n >= 12:
		return StrengthGood
	case n >= 8:
		return StrengthFair
	default:
		return StrengthWeak
	}
}

// allSame reports whether every rune is identical ("1111", "aaaa").
func allSame(runes []rune) bool {
	if len(runes) == 0 {
		return true
	}
	for _, r := range runes[1:] {
		if r != runes[0] {
			return false
		}
	}
	return true
}

// digitRun reports whether the secret is a strictly ascending or
// descending digit sequence ("1234", "9876").
func digitRun(runes []rune) bool {
	if len(runes) < 2 || !allDigits(runes) {
		return false
	}
	ascending, descending := true, true
	for i := 1; i < len(runes); i++ {
		if runes[i] != runes[i-1]+1 {
			ascending = false
		}
		if runes[i] != runes[i-1]-1 {
			descending = false
		}
	}
	return ascending || descending
}

func allDigits(runes []rune) bool {
	for _, r := range runes {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return len(runes) > 0
}
