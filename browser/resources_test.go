package browser

import "testing"

func TestShouldBlock(t *testing.T) {
	blockSet := map[string]bool{"images": true, "media": true, "fonts": true, "stylesheets": true}
	tests := []struct {
		resType string
		want    bool
	}{
		{"Image", true},
		{"Media", true},
		{"Font", true},
		{"Stylesheet", true},
		{"Document", false},
		{"Script", false},
		{"XHR", false},
		{"Fetch", false},
	}
	for _, tt := range tests {
		if got := shouldBlock(blockSet, tt.resType); got != tt.want {
			t.Errorf("shouldBlock(%q) = %v, want %v", tt.resType, got, tt.want)
		}
	}
}

func TestShouldBlock_Empty(t *testing.T) {
	if shouldBlock(map[string]bool{}, "Image") {
		t.Error("empty block set should allow images")
	}
}
