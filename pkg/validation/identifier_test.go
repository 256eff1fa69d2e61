package validation

import (
	"testing"
)

func TestValidatePackageName(t *testing.T) {
	tests := []struct {
		name    string
		pkg     string
		wantErr bool
	}{
		// Valid package names
		{"simple", "com.example", false},
		{"three segments", "com.example.app", false},
		{"with digits", "com.example.app2", false},
		{"with underscore", "com.example.my_app", false},
		{"mixed case", "com.Example.App", false},

		// Invalid package names - injection attempts
		{"empty", "", true},
		{"single segment", "app", true},
		{"command injection", "com.example; rm -rf /", true},
		{"shell substitution", "com.example$(reboot)", true},
		{"newline injection", "com.example\nreboot", true},
		{"segment starts with digit", "com.1example", true},
		{"trailing dot", "com.example.", true},
		{"leading dot", ".com.example", true},
		{"double dot", "com..example", true},
		{"spaces", "com. example", true},
		{"hyphen", "com.example-app", true},
		{"path traversal", "../../etc/passwd", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePackageName(tt.pkg)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePackageName(%q) error = %v, wantErr %v", tt.pkg, err, tt.wantErr)
			}
		})
	}
}

func TestValidatePackageNames(t *testing.T) {
	tests := []struct {
		name    string
		pkgs    []string
		wantErr bool
	}{
		{"all valid", []string{"com.example", "org.test.app"}, false},
		{"one invalid", []string{"com.example", "bad pkg"}, true},
		{"all invalid", []string{"app", ""}, true},
		{"empty slice", []string{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePackageNames(tt.pkgs)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePackageNames(%v) error = %v, wantErr %v", tt.pkgs, err, tt.wantErr)
			}
		})
	}
}

func TestSanitizePackageName(t *testing.T) {
	tests := []struct {
		name    string
		pkg     string
		want    string
		wantErr bool
	}{
		{"passthrough", "com.example.app", "com.example.app", false},
		{"spaces trimmed", "  com.example.app  ", "com.example.app", false},
		{"invalid rejected", "bad pkg", "", true},
		{"inner spaces rejected", "com.exa mple", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizePackageName(tt.pkg)
			if (err != nil) != tt.wantErr {
				t.Errorf("SanitizePackageName(%q) error = %v, wantErr %v", tt.pkg, err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("SanitizePackageName(%q) = %q, want %q", tt.pkg, got, tt.want)
			}
		})
	}
}
