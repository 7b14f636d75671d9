package main

import (
	"os"
	"reflect"
	"testing"
)

func TestFirstNonEmptyPicksFirstNonBlank(t *testing.T) {
	if got := firstNonEmpty("", "  ", "b", "c"); got != "b" {
		t.Fatalf("got %q, want %q", got, "b")
	}
	if got := firstNonEmpty("", ""); got != "" {
		t.Fatalf("got %q, want empty", got)
	}
}

func TestResolveBoolPrefersFlagThenEnv(t *testing.T) {
	const env = "VIDEOINGEST_TEST_BOOL"
	t.Cleanup(func() { os.Unsetenv(env) })

	if !resolveBool(true, env) {
		t.Fatal("expected flag value true to win regardless of env")
	}

	os.Setenv(env, "true")
	if !resolveBool(false, env) {
		t.Fatal("expected env override to be honored when flag is false")
	}

	os.Setenv(env, "not-a-bool")
	if resolveBool(false, env) {
		t.Fatal("expected invalid env value to fall back to false")
	}
}

func TestSplitAndTrim(t *testing.T) {
	got := splitAndTrim(" 10.0.0.0/8 , 192.168.1.1 ,, ")
	want := []string{"10.0.0.0/8", "192.168.1.1"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	if got := splitAndTrim(""); got != nil {
		t.Fatalf("expected nil for empty input, got %v", got)
	}
}
