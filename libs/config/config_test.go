package config

import (
	"testing"
	"time"
)

func TestLookupsFromEnv(t *testing.T) {
	t.Setenv("CFGTEST_NAME", "  scheduling  ")
	t.Setenv("CFGTEST_INT", "42")
	t.Setenv("CFGTEST_BAD_INT", "forty")
	t.Setenv("CFGTEST_BOOL", "true")
	t.Setenv("CFGTEST_SECONDS", "90")
	t.Setenv("CFGTEST_DURATION", "5m")
	t.Setenv("CFGTEST_LIST", "a, b,,c ")

	if got := String("CFGTEST_NAME", "x"); got != "scheduling" {
		t.Fatalf("expected trimmed value, got %q", got)
	}
	if got := String("CFGTEST_MISSING", "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
	if got := Int("CFGTEST_INT", 1); got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
	if got := Int("CFGTEST_BAD_INT", 7); got != 7 {
		t.Fatalf("expected fallback 7, got %d", got)
	}
	if !Bool("CFGTEST_BOOL", false) {
		t.Fatal("expected true")
	}
	if got := Duration("CFGTEST_SECONDS", time.Second); got != 90*time.Second {
		t.Fatalf("expected 90s, got %s", got)
	}
	if got := Duration("CFGTEST_DURATION", time.Second); got != 5*time.Minute {
		t.Fatalf("expected 5m, got %s", got)
	}
	list := List("CFGTEST_LIST")
	if len(list) != 3 || list[0] != "a" || list[2] != "c" {
		t.Fatalf("unexpected list: %#v", list)
	}
}

func TestRequiredStringAndPort(t *testing.T) {
	if _, err := RequiredString("CFGTEST_REQUIRED_MISSING"); err == nil {
		t.Fatal("expected error for missing required key")
	}

	t.Setenv("CFGTEST_PORT", "70000")
	if _, err := Port("CFGTEST_PORT", "8080"); err == nil {
		t.Fatal("expected error for out-of-range port")
	}
	if p, err := Port("CFGTEST_PORT_UNSET", "8085"); err != nil || p != "8085" {
		t.Fatalf("expected fallback port, got %q err=%v", p, err)
	}
}
