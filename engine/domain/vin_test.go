package domain

import (
	"errors"
	"testing"
)

func TestValidateVIN(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"valid uppercase", "1HGCM82633A004352", "1HGCM82633A004352", false},
		{"lowercase normalized", "1hgcm82633a004352", "1HGCM82633A004352", false},
		{"surrounding whitespace", "  1HGCM82633A004352 ", "1HGCM82633A004352", false},
		{"too short", "1HGCM82633A00435", "", true},
		{"too long", "1HGCM82633A0043521", "", true},
		{"contains I", "1HGCM82633A00435I", "", true},
		{"contains O", "1HGCM82633A00435O", "", true},
		{"contains Q", "1HGCM82633A00435Q", "", true},
		{"empty", "", "", true},
		{"punctuation", "1HGCM82633A00435!", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateVIN(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ValidateVIN(%q) expected error", tt.in)
				}
				var e *Error
				if !errors.As(err, &e) || e.Code != CodeInvalidVIN {
					t.Fatalf("expected invalid_vin code, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ValidateVIN(%q) unexpected error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ValidateVIN(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCheckDigit(t *testing.T) {
	// 2003 Honda Accord, check digit 3 at position 9.
	if !CheckDigit("1HGCM82633A004352") {
		t.Error("expected valid check digit")
	}
	// Same VIN with the check digit flipped.
	if CheckDigit("1HGCM82643A004352") {
		t.Error("expected check digit mismatch")
	}
	if CheckDigit("SHORT") {
		t.Error("expected false for wrong length")
	}
	// Weighted sum ≡ 10 mod 11 renders as X.
	if !CheckDigit("11111111X11111141") {
		t.Error("expected X check digit to validate")
	}
}
