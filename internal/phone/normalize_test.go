package phone

import (
	"errors"
	"testing"
)

func TestNormalize_NationalForms(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		carrier string
	}{
		{"03211234567", "+923211234567", "Jazz"},
		{"0321-123 4567", "+923211234567", "Jazz"},
		{"3211234567", "+923211234567", "Jazz"},
		{"923451234567", "+923451234567", "Telenor"},
		{"+92 345 1234567", "+923451234567", "Telenor"},
		{"00923331234567", "+923331234567", "Ufone"},
		{"(0312) 1234567", "+923121234567", "Zong"},
	}

	for _, tt := range tests {
		n, err := Normalize(tt.in)
		if err != nil {
			t.Errorf("Normalize(%q) error: %v", tt.in, err)
			continue
		}
		if n.Canonical != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, n.Canonical, tt.want)
		}
		if n.Carrier != tt.carrier {
			t.Errorf("Normalize(%q) carrier = %q, want %q", tt.in, n.Carrier, tt.carrier)
		}
		if !n.IsNational() {
			t.Errorf("Normalize(%q) should be national", tt.in)
		}
	}
}

func TestNormalize_UnknownCarrier(t *testing.T) {
	for _, in := range []string{"03601234567", "3991234567", "+923901234567"} {
		_, err := Normalize(in)
		if !errors.Is(err, ErrUnknownCarrier) {
			t.Errorf("Normalize(%q) err = %v, want ErrUnknownCarrier", in, err)
		}
	}
}

func TestNormalize_International(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"+14155550123", "+14155550123"},
		{"0044 20 7946 0958", "+442079460958"},
		{"4915112345678", "+4915112345678"},
		{"+92 21 1234567", "+92211234567"},
	}

	for _, tt := range tests {
		n, err := Normalize(tt.in)
		if err != nil {
			t.Errorf("Normalize(%q) error: %v", tt.in, err)
			continue
		}
		if n.Canonical != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, n.Canonical, tt.want)
		}
		if n.Carrier != International {
			t.Errorf("Normalize(%q) carrier = %q, want %q", tt.in, n.Carrier, International)
		}
		if n.Region != "" {
			t.Errorf("Normalize(%q) region = %q, want empty", tt.in, n.Region)
		}
	}
}

func TestNormalize_FormatErrors(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"notanumber",
		"123456",           // too short
		"1234567890123456", // too long
		"04211234567",      // landline trunk prefix
		"+0123456789",
		"00123",
	}

	for _, in := range inputs {
		_, err := Normalize(in)
		if !errors.Is(err, ErrFormat) {
			t.Errorf("Normalize(%q) err = %v, want ErrFormat", in, err)
		}
	}
}

func TestNormalize_PlusOnlyWhenLeading(t *testing.T) {
	n, err := Normalize("0321+1234567")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Canonical != "+923211234567" {
		t.Errorf("canonical = %q", n.Canonical)
	}
}
