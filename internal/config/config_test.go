package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ADMINCORE_TOKEN_SECRET", "s3cret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Fatalf("HTTP.Addr=%q", cfg.HTTP.Addr)
	}
	if cfg.Token.Expire != 2*time.Hour || cfg.Token.RefreshExpire != 36*time.Hour {
		t.Fatalf("token TTLs: %v / %v", cfg.Token.Expire, cfg.Token.RefreshExpire)
	}
	if cfg.Redis.ChallengeDB == cfg.Redis.SessionDB {
		t.Fatal("challenge and session DBs should default to distinct indexes")
	}
	if cfg.SuperAdminUsername != "admin" {
		t.Fatalf("SuperAdminUsername=%q", cfg.SuperAdminUsername)
	}
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("ADMINCORE_TOKEN_SECRET", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing secret")
	}
}

func TestLoadRejectsInvertedTTLs(t *testing.T) {
	t.Setenv("ADMINCORE_TOKEN_SECRET", "s3cret")
	t.Setenv("ADMINCORE_TOKEN_EXPIRE", "2h")
	t.Setenv("ADMINCORE_TOKEN_REFRESH_EXPIRE", "1h")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for refresh expiry below access expiry")
	}
}
