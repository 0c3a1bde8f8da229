package identity

import "testing"

func TestSanitizeContact(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"9876543210", "+919876543210"},
		{"98765 43210", "+919876543210"},
		{"+91 98765-43210", "+919876543210"},
		{"919876543210", "+919876543210"},
		{"09876543210", "+919876543210"},
		{"+14155550123", "+14155550123"},
		{"12345", "12345"},
		{"", ""},
		{"abc", ""},
	}
	for _, tt := range tests {
		if got := SanitizeContact(tt.in); got != tt.want {
			t.Errorf("SanitizeContact(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestContactSuffix_CountryCodeInsensitive(t *testing.T) {
	variants := []string{"+919876543210", "9876543210", "919876543210", "09876543210", "+91-98765-43210"}
	for _, v := range variants {
		if got := ContactSuffix(v); got != "9876543210" {
			t.Errorf("ContactSuffix(%q) = %q, want 9876543210", v, got)
		}
	}
}

func TestContactSuffix_TooShort(t *testing.T) {
	if got := ContactSuffix("98765"); got != "" {
		t.Errorf("expected empty suffix for short number, got %q", got)
	}
}

func TestNormalizeName(t *testing.T) {
	names := []string{"Asha Rao", "  asha rao ", "ASHA RAO", "\tAsha Rao\n"}
	for _, n := range names {
		if got := NormalizeName(n); got != "asha rao" {
			t.Errorf("NormalizeName(%q) = %q, want %q", n, got, "asha rao")
		}
	}
	if NormalizeName("Asha  Rao") == NormalizeName("Asha Rao") {
		t.Error("expected inner spacing to remain significant")
	}
}

func TestParseGender(t *testing.T) {
	for in, want := range map[string]Gender{"male": GenderMale, "Female": GenderFemale, " OTHER ": GenderOther} {
		got, err := ParseGender(in)
		if err != nil || got != want {
			t.Errorf("ParseGender(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseGender("unknown"); err == nil {
		t.Error("expected error for unknown gender")
	}
}
