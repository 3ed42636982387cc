package internal

import "testing"

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
	if cfg.Auth.AuthEnabled() {
		t.Error("auth enabled by default")
	}
}

func TestHTTPConfigValidation(t *testing.T) {
	cases := []struct {
		name    string
		port    int
		wantErr bool
	}{
		{"valid", 8080, false},
		{"zero", 0, true},
		{"negative", -1, true},
		{"too high", 70000, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := HTTPConfig{Port: tc.port}
			err := c.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("port %d: err = %v, wantErr = %v", tc.port, err, tc.wantErr)
			}
		})
	}
}

func TestPathConfigsRequirePath(t *testing.T) {
	if err := (&VaultConfig{}).Validate(); err == nil {
		t.Error("empty vault path accepted")
	}
	if err := (&RegistryConfig{}).Validate(); err == nil {
		t.Error("empty registry path accepted")
	}
	if err := (&SQLiteConfig{}).Validate(); err == nil {
		t.Error("empty sqlite path accepted")
	}
	if err := (&CacheConfig{}).Validate(); err == nil {
		t.Error("empty cache path accepted")
	}
}

func TestBatchConfigValidation(t *testing.T) {
	if err := (&BatchConfig{Workers: 4}).Validate(); err != nil {
		t.Errorf("workers 4: %v", err)
	}
	if err := (&BatchConfig{Workers: 100}).Validate(); err == nil {
		t.Error("workers 100 accepted")
	}
}

func TestAuthConfigValidation(t *testing.T) {
	cases := []struct {
		name    string
		cfg     AuthConfig
		wantErr bool
		enabled bool
	}{
		{"disabled", AuthConfig{Mode: AuthModeDisabled}, false, false},
		{"empty mode defaults to disabled", AuthConfig{}, false, false},
		{"token with value", AuthConfig{Mode: AuthModeToken, Token: "s3cret"}, false, true},
		{"token without value", AuthConfig{Mode: AuthModeToken}, true, false},
		{"unknown mode", AuthConfig{Mode: "basic"}, true, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("err = %v, wantErr = %v", err, tc.wantErr)
			}
			if err == nil && tc.cfg.AuthEnabled() != tc.enabled {
				t.Errorf("AuthEnabled = %v, want %v", tc.cfg.AuthEnabled(), tc.enabled)
			}
		})
	}
}

func TestHTTPAddress(t *testing.T) {
	c := HTTPConfig{Port: 9000}
	if got := c.Address(); got != ":9000" {
		t.Errorf("Address = %q", got)
	}
}
