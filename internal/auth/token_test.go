package auth

import "testing"

func TestStatic(t *testing.T) {
	if got := Static("abc").Token(); got != "abc" {
		t.Errorf("got %q, want abc", got)
	}
	if got := Static("").Token(); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}

func TestEnvReadsEveryCall(t *testing.T) {
	src := Env("BMS_CHAT_TEST_TOKEN")

	t.Setenv("BMS_CHAT_TEST_TOKEN", "first")
	if got := src.Token(); got != "first" {
		t.Errorf("got %q, want first", got)
	}

	// Rotated token picked up without rebuilding the source.
	t.Setenv("BMS_CHAT_TEST_TOKEN", "second")
	if got := src.Token(); got != "second" {
		t.Errorf("got %q, want second", got)
	}
}
