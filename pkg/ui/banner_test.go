package ui

import (
	"fmt"
	"strings"
	"testing"
)

// TestBannerPreview prints the banner so `go test ./pkg/ui -run TestBannerPreview -v` shows it.
func TestBannerPreview(t *testing.T) {
	if testing.Verbose() {
		fmt.Println(Banner())
	}
}

func TestBannerIncludesWordmark(t *testing.T) {
	banner := Banner()
	if !strings.Contains(banner, "frame"+lensCyan+"lens") {
		t.Fatalf("banner missing framelens wordmark: %q", banner)
	}
	if !strings.Contains(banner, "game performance lens") {
		t.Fatalf("banner missing tagline")
	}
	lines := strings.Split(strings.TrimSpace(banner), "\n")
	if len(lines) < 8 {
		t.Fatalf("expected multi-line banner, got %d lines", len(lines))
	}
}

func TestBannerRowsHaveEqualWidth(t *testing.T) {
	lines := strings.Split(Banner(), "\n")[:6]
	strip := func(s string) string {
		for _, code := range []string{reset, bold, lensCyan, skyBlue, cobalt, violet, magenta, coral, frameAmber} {
			s = strings.ReplaceAll(s, code, "")
		}
		return s
	}
	want := len([]rune(strip(lines[0])))
	for i, line := range lines[1:] {
		if got := len([]rune(strip(line))); got != want {
			t.Fatalf("row %d has width %d, want %d", i+1, got, want)
		}
	}
}

func TestBannerUsesGradientColors(t *testing.T) {
	banner := Banner()
	colors := []string{bold, lensCyan, skyBlue, cobalt, violet, magenta, coral, frameAmber}
	for _, color := range colors {
		if !strings.Contains(banner, color) {
			t.Fatalf("banner missing color code %q", color)
		}
	}
}
