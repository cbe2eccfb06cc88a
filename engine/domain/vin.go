package domain

import (
	"regexp"
	"strings"
)

// VIN format: 17 alphanumeric characters, excluding I, O, Q.
var vinRegex = regexp.MustCompile(`^[A-HJ-NPR-Z0-9]{17}$`)

// ValidateVIN normalizes a raw VIN (trim + uppercase) and checks its shape.
// The returned string is the normalized VIN.
func ValidateVIN(raw string) (string, error) {
	vin := strings.ToUpper(strings.TrimSpace(raw))
	if !vinRegex.MatchString(vin) {
		return "", E(CodeInvalidVIN, "VIN must be 17 characters A-Z (excluding I, O, Q) or 0-9")
	}
	return vin, nil
}

// vinValues transliterates VIN characters for the check digit computation.
var vinValues = map[byte]int{
	'A': 1, 'B': 2, 'C': 3, 'D': 4, 'E': 5, 'F': 6, 'G': 7, 'H': 8,
	'J': 1, 'K': 2, 'L': 3, 'M': 4, 'N': 5, 'P': 7, 'R': 9,
	'S': 2, 'T': 3, 'U': 4, 'V': 5, 'W': 6, 'X': 7, 'Y': 8, 'Z': 9,
	'0': 0, '1': 1, '2': 2, '3': 3, '4': 4, '5': 5, '6': 6, '7': 7,
	'8': 8, '9': 9,
}

// vinWeights are the per-position weights; position 9 (the check digit
// itself) carries weight 0.
var vinWeights = [17]int{8, 7, 6, 5, 4, 3, 2, 10, 0, 9, 8, 7, 6, 5, 4, 3, 2}

// CheckDigit reports whether the position-9 check digit of an already
// normalized 17-character VIN is consistent. Some non-North-American VINs
// legitimately fail this, so callers treat a mismatch as advisory.
func CheckDigit(vin string) bool {
	if len(vin) != 17 {
		return false
	}
	sum := 0
	for i := 0; i < 17; i++ {
		v, ok := vinValues[vin[i]]
		if !ok {
			return false
		}
		sum += v * vinWeights[i]
	}
	want := byte('0' + sum%11)
	if sum%11 == 10 {
		want = 'X'
	}
	return vin[8] == want
}
