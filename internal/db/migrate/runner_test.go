package migrate

import (
	"strings"
	"testing"
)

func TestRun_RejectsEmptyDSN(t *testing.T) {
	err := Run("", "up")
	if err == nil || !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Fatalf("Run with empty DSN = %v, want DATABASE_URL error", err)
	}
}

func TestRun_RejectsUnknownDirection(t *testing.T) {
	err := Run("postgres://localhost/identity", "sideways")
	if err == nil || !strings.Contains(err.Error(), "direction") {
		t.Fatalf("Run with bad direction = %v, want direction error", err)
	}
}
