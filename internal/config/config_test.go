package config

import (
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIBaseURL != "http://localhost:8000" {
		t.Errorf("APIBaseURL = %q, want default", cfg.APIBaseURL)
	}
	if cfg.RequestTimeout != 30*time.Second {
		t.Errorf("RequestTimeout = %s, want 30s", cfg.RequestTimeout)
	}
	if cfg.CredentialStore != StoreFile {
		t.Errorf("CredentialStore = %q, want %q", cfg.CredentialStore, StoreFile)
	}
	if cfg.DefaultCurrency != "USDT.TRC20" {
		t.Errorf("DefaultCurrency = %q, want USDT.TRC20", cfg.DefaultCurrency)
	}
	if cfg.JWTAccessTTL != 15*time.Minute {
		t.Errorf("JWTAccessTTL = %s, want 15m", cfg.JWTAccessTTL)
	}

	lo, hi, err := cfg.DepositRange()
	if err != nil {
		t.Fatalf("DepositRange: %v", err)
	}
	if !lo.Equal(decimal.NewFromInt(10)) || !hi.Equal(decimal.NewFromInt(100000)) {
		t.Errorf("deposit range = [%s, %s], want [10, 100000]", lo, hi)
	}
	lo, hi, err = cfg.WithdrawRange()
	if err != nil {
		t.Fatalf("WithdrawRange: %v", err)
	}
	if !lo.Equal(decimal.NewFromInt(10)) || !hi.Equal(decimal.NewFromInt(50000)) {
		t.Errorf("withdraw range = [%s, %s], want [10, 50000]", lo, hi)
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	os.Clearenv()
	os.Setenv("API_BASE_URL", "https://wallet.example.com")
	os.Setenv("REQUEST_TIMEOUT", "45s")
	os.Setenv("CREDENTIAL_STORE", "memory")
	os.Setenv("RATE_LIMIT_RPS", "2.5")
	defer os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIBaseURL != "https://wallet.example.com" {
		t.Errorf("APIBaseURL = %q", cfg.APIBaseURL)
	}
	if cfg.RequestTimeout != 45*time.Second {
		t.Errorf("RequestTimeout = %s, want 45s", cfg.RequestTimeout)
	}
	if cfg.CredentialStore != StoreMemory {
		t.Errorf("CredentialStore = %q, want memory", cfg.CredentialStore)
	}
	if cfg.RateLimitRPS != 2.5 {
		t.Errorf("RateLimitRPS = %v, want 2.5", cfg.RateLimitRPS)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown store", map[string]string{"CREDENTIAL_STORE": "cookie"}},
		{"timeout too short", map[string]string{"REQUEST_TIMEOUT": "10ms"}},
		{"min above max", map[string]string{"DEPOSIT_MIN": "500", "DEPOSIT_MAX": "100"}},
		{"bad decimal", map[string]string{"WITHDRAW_MAX": "lots"}},
		{"negative rps", map[string]string{"RATE_LIMIT_RPS": "-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			for k, v := range tt.env {
				os.Setenv(k, v)
			}
			defer os.Clearenv()

			if _, err := Load(); err == nil {
				t.Error("Load should fail")
			}
		})
	}
}

func TestStartBalance_Fallback(t *testing.T) {
	cfg := &Config{MockStartBalance: "not-a-number"}
	if !cfg.StartBalance().Equal(decimal.NewFromInt(1000)) {
		t.Errorf("StartBalance = %s, want 1000", cfg.StartBalance())
	}
}
