package amount

import "testing"

func TestMajor(t *testing.T) {
	tests := []struct {
		currency string
		minor    int64
		want     string
	}{
		{"INR", 123456, "1234.56"},
		{"INR", 5, "0.05"},
		{"USD", 10000, "100.00"},
		{"JPY", 500, "500"},
		{"???", 1234, "12.34"},
		{"???", -7, "-0.07"},
	}

	for _, tt := range tests {
		t.Run(tt.currency, func(t *testing.T) {
			if got := Major(tt.currency, tt.minor); got != tt.want {
				t.Errorf("Major(%q, %d) = %q, want %q", tt.currency, tt.minor, got, tt.want)
			}
		})
	}
}

func TestFormat(t *testing.T) {
	if got := Formatter("INR").Format(3334); got != "INR 33.34" {
		t.Errorf("Format = %q", got)
	}
	if got := Format("???", 100); got != "??? 1.00" {
		t.Errorf("fallback Format = %q", got)
	}
}
