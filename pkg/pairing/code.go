package pairing

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/oreon-project/pickup-go/pkg/config"
)

// Code errors.
var (
	// ErrInvalidCode indicates a code with the wrong length or
	// non-decimal characters.
	ErrInvalidCode = errors.New("invalid pairing code")
)

// GenerateCode generates a uniformly random pairing code of the given number
// of decimal digits, leading zeros preserved. The code guards a short-lived
// local-network handshake; crypto/rand keeps it unpredictable.
func GenerateCode(length int) (string, error) {
	if length < config.MinCodeLength || length > config.MaxCodeLength {
		return "", fmt.Errorf("%w: length %d", ErrInvalidCode, length)
	}

	// 10^length possible codes
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", fmt.Errorf("failed to generate pairing code: %w", err)
	}

	return fmt.Sprintf("%0*d", length, n), nil
}

// ValidateCode checks that a code is a decimal string of an allowed length.
func ValidateCode(code string) error {
	code = strings.TrimSpace(code)
	if len(code) < config.MinCodeLength || len(code) > config.MaxCodeLength {
		return fmt.Errorf("%w: must be %d-%d digits", ErrInvalidCode, config.MinCodeLength, config.MaxCodeLength)
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return fmt.Errorf("%w: non-decimal character", ErrInvalidCode)
		}
	}
	return nil
}
