package cache

import "testing"

func TestToolKey(t *testing.T) {
	tests := []struct {
		mode, query, want string
	}{
		{"web", "  Solar FARMS  ", "web:solar farms"},
		{"deep", "x", "deep:x"},
		{"web", "", "web:"},
	}
	for _, tt := range tests {
		if got := ToolKey(tt.mode, tt.query); got != tt.want {
			t.Errorf("ToolKey(%q, %q) = %q, want %q", tt.mode, tt.query, got, tt.want)
		}
	}
}
