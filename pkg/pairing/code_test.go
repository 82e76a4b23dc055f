package pairing

import (
	"errors"
	"strings"
	"testing"
)

func TestGenerateCode(t *testing.T) {
	for _, length := range []int{4, 6, 8, 12} {
		for i := 0; i < 50; i++ {
			code, err := GenerateCode(length)
			if err != nil {
				t.Fatalf("GenerateCode(%d) failed: %v", length, err)
			}
			if len(code) != length {
				t.Errorf("GenerateCode(%d) = %q, want %d digits", length, code, length)
			}
			if err := ValidateCode(code); err != nil {
				t.Errorf("generated code %q does not validate: %v", code, err)
			}
		}
	}
}

func TestGenerateCodeLeadingZeros(t *testing.T) {
	// Codes below 10^(n-1) must keep their leading zeros. With 4 digits a
	// leading zero appears 10% of the time, so 200 draws all but guarantee
	// at least one unless padding is broken.
	sawLeadingZero := false
	for i := 0; i < 200; i++ {
		code, err := GenerateCode(4)
		if err != nil {
			t.Fatalf("GenerateCode failed: %v", err)
		}
		if len(code) != 4 {
			t.Fatalf("GenerateCode(4) = %q, want 4 digits", code)
		}
		if strings.HasPrefix(code, "0") {
			sawLeadingZero = true
		}
	}
	if !sawLeadingZero {
		t.Error("no leading-zero code in 200 draws, padding looks broken")
	}
}

func TestGenerateCodeDigitDistribution(t *testing.T) {
	// Each digit position is uniform over 0-9, so across 10000 4-digit
	// codes every digit should appear close to 4000 times. A 10% band is
	// over six standard deviations wide; a miss means biased generation,
	// not bad luck.
	const draws = 10000
	const codeLength = 4

	var counts [10]int
	for i := 0; i < draws; i++ {
		code, err := GenerateCode(codeLength)
		if err != nil {
			t.Fatalf("GenerateCode failed: %v", err)
		}
		for _, r := range code {
			counts[r-'0']++
		}
	}

	expected := draws * codeLength / 10
	lo, hi := expected*9/10, expected*11/10
	for digit, n := range counts {
		if n < lo || n > hi {
			t.Errorf("digit %d appeared %d times, want %d-%d", digit, n, lo, hi)
		}
	}
}

func TestGenerateCodeInvalidLength(t *testing.T) {
	for _, length := range []int{0, 3, 13, -1} {
		if _, err := GenerateCode(length); !errors.Is(err, ErrInvalidCode) {
			t.Errorf("GenerateCode(%d) error = %v, want ErrInvalidCode", length, err)
		}
	}
}

func TestValidateCode(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		wantErr bool
	}{
		{"minimum length", "1234", false},
		{"maximum length", "123456789012", false},
		{"leading zeros", "0042", false},
		{"surrounding whitespace", " 1234 ", false},
		{"too short", "123", true},
		{"too long", "1234567890123", true},
		{"empty", "", true},
		{"letters", "12ab", true},
		{"unicode digits", "１２３４", true},
		{"negative", "-123", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCode(tt.code)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateCode(%q) error = %v, wantErr %v", tt.code, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidCode) {
				t.Errorf("ValidateCode(%q) error = %v, want ErrInvalidCode", tt.code, err)
			}
		})
	}
}
