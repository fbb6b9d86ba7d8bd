// Package imei validates IMEI numbers as they are scanned into inventory.
package imei

import "strings"

// Result is the outcome of validating a single IMEI.
type Result struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message,omitempty"`
}

// PairResult is the outcome of validating a dual-SIM IMEI pair. Warning is
// set when both numbers are valid but the TAC prefixes differ, which usually
// means a scan mistake but is legal for units repaired with after-market
// boards.
type PairResult struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message,omitempty"`
	Warning string `json:"warning,omitempty"`
}

const tacLength = 8

// Validate checks that imei is a 15-digit numeric string whose Luhn check
// digit is correct.
func Validate(imei string) Result {
	trimmed := strings.TrimSpace(imei)
	if len(trimmed) != 15 {
		return Result{Message: "IMEI must be exactly 15 digits"}
	}
	for _, r := range trimmed {
		if r < '0' || r > '9' {
			return Result{Message: "IMEI must contain only digits"}
		}
	}
	if !luhnValid(trimmed) {
		return Result{Message: "IMEI check digit is invalid"}
	}
	return Result{Valid: true}
}

// ValidateDualPair validates both numbers of a dual-SIM unit. A TAC mismatch
// between the two is reported as a warning, not a failure.
func ValidateDualPair(imei1, imei2 string) PairResult {
	first := Validate(imei1)
	if !first.Valid {
		return PairResult{Message: "IMEI1: " + first.Message}
	}
	second := Validate(imei2)
	if !second.Valid {
		return PairResult{Message: "IMEI2: " + second.Message}
	}
	if strings.TrimSpace(imei1)[:tacLength] != strings.TrimSpace(imei2)[:tacLength] {
		return PairResult{
			Valid:   true,
			Warning: "IMEI1 and IMEI2 have different TAC prefixes; verify both were scanned from the same unit",
		}
	}
	return PairResult{Valid: true}
}

// luhnValid runs the Luhn checksum over all 15 digits; a correct IMEI sums
// to a multiple of ten. Digits in even positions (second, fourth, ... from
// the left) are doubled, with 9 subtracted from two-digit products.
func luhnValid(digits string) bool {
	sum := 0
	for i := 0; i < len(digits); i++ {
		d := int(digits[i] - '0')
		if i%2 == 1 {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
	}
	return sum%10 == 0
}
