package main

import "testing"

func TestEnvOrDefaultIntFallsBackOnUnsetOrInvalid(t *testing.T) {
	t.Setenv("LIBRESPOT_TEST_PORT", "")
	if got := envOrDefaultInt("LIBRESPOT_TEST_PORT", 7); got != 7 {
		t.Errorf("unset: got %d, want 7", got)
	}

	t.Setenv("LIBRESPOT_TEST_PORT", "not-a-number")
	if got := envOrDefaultInt("LIBRESPOT_TEST_PORT", 7); got != 7 {
		t.Errorf("invalid: got %d, want 7", got)
	}

	t.Setenv("LIBRESPOT_TEST_PORT", "4242")
	if got := envOrDefaultInt("LIBRESPOT_TEST_PORT", 7); got != 4242 {
		t.Errorf("explicit: got %d, want 4242", got)
	}
}
