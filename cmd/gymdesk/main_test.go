package main

import (
	"context"
	"strings"
	"testing"
)

func TestValidatePort(t *testing.T) {
	for _, port := range []int{0, -1, 70000} {
		if err := validatePort(port); err == nil {
			t.Fatalf("expected port %d to be rejected", port)
		}
	}
	if err := validatePort(8318); err != nil {
		t.Fatalf("validatePort(8318): %v", err)
	}
}

func TestRunRejectsUnknownCommand(t *testing.T) {
	err := run(context.Background(), []string{"dance"})
	if err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Fatalf("expected unknown command error, got %v", err)
	}
}
