package main

import (
	"strings"
	"testing"
)

func TestConfirmProceedAccepts(t *testing.T) {
	for _, input := range []string{"\n", "y\n", "Y\n", "  y  \n", ""} {
		var out strings.Builder
		proceed, err := confirmProceed(strings.NewReader(input), &out)
		if err != nil {
			t.Fatalf("confirmProceed(%q): %v", input, err)
		}
		if !proceed {
			t.Fatalf("confirmProceed(%q) = false, want true", input)
		}
		if !strings.Contains(out.String(), "Do you wish to continue?") {
			t.Fatalf("prompt missing from output %q", out.String())
		}
	}
}

func TestConfirmProceedDeclines(t *testing.T) {
	var out strings.Builder
	proceed, err := confirmProceed(strings.NewReader("n\n"), &out)
	if err != nil {
		t.Fatalf("confirmProceed: %v", err)
	}
	if proceed {
		t.Fatal("expected decline")
	}
	if !strings.Contains(out.String(), "Aborting...") {
		t.Fatalf("expected abort notice, got %q", out.String())
	}
}

func TestConfirmProceedRejectsOtherInput(t *testing.T) {
	var out strings.Builder
	if _, err := confirmProceed(strings.NewReader("maybe\n"), &out); err == nil {
		t.Fatal("expected error for unrecognized input")
	}
}
