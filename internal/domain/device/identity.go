package device

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// SuffixDigits is the number of decimal digits following the prefix.
const SuffixDigits = 5

var (
	// ErrInvalidID is returned when an identifier does not follow the prefix+digits format.
	ErrInvalidID = errors.New("invalid device identifier")
	// errEmptyPrefix is returned when no prefix is configured.
	errEmptyPrefix = errors.New("identifier prefix must not be empty")

	//nolint:gochecknoglobals // Upper bound for the random suffix, computed once.
	suffixSpace = big.NewInt(100_000)
)

// ValidateID checks that id is prefix followed by SuffixDigits decimal digits.
func ValidateID(id, prefix string) error {
	if prefix == "" {
		return errEmptyPrefix
	}

	if len(id) != len(prefix)+SuffixDigits {
		return fmt.Errorf("%w: %q has wrong length", ErrInvalidID, id)
	}

	suffix, found := strings.CutPrefix(id, prefix)
	if !found {
		return fmt.Errorf("%w: %q lacks prefix %q", ErrInvalidID, id, prefix)
	}

	for _, r := range suffix {
		if r < '0' || r > '9' {
			return fmt.Errorf("%w: %q has a non-numeric suffix", ErrInvalidID, id)
		}
	}

	return nil
}

// GenerateID returns a fresh random identifier with the given prefix.
func GenerateID(prefix string) (string, error) {
	if prefix == "" {
		return "", errEmptyPrefix
	}

	n, err := rand.Int(rand.Reader, suffixSpace)
	if err != nil {
		return "", fmt.Errorf("generate identifier: %w", err)
	}

	return fmt.Sprintf("%s%0*d", prefix, SuffixDigits, n.Int64()), nil
}
