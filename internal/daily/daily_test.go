package daily

import (
	"testing"
	"time"
)

func TestDateKeyUsesLocation(t *testing.T) {
	ts := time.Date(2024, 3, 9, 23, 30, 0, 0, time.UTC)
	if got := DateKey(ts, nil); got != "2024-03-09" {
		t.Fatalf("DateKey(UTC) = %q", got)
	}
	tokyo := time.FixedZone("JST", 9*3600)
	if got := DateKey(ts, tokyo); got != "2024-03-10" {
		t.Fatalf("DateKey(JST) = %q", got)
	}
}

func TestSeedStablePerDateAndSalt(t *testing.T) {
	a := Seed("2024-03-09", "salt")
	if a != Seed("2024-03-09", "salt") {
		t.Fatal("seed not deterministic")
	}
	if a == Seed("2024-03-10", "salt") {
		t.Error("different dates share a seed")
	}
	if a == Seed("2024-03-09", "pepper") {
		t.Error("different salts share a seed")
	}
}
