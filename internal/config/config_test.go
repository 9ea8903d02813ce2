package config

import (
	"testing"

	"snngen/internal/merge"
)

func TestWorkgroupSizeDefault(t *testing.T) {
	c := &Config{}
	if got := c.WorkgroupSize(merge.NeuronUpdate); got != defaultWorkgroupSize {
		t.Fatalf("got %d, want %d", got, defaultWorkgroupSize)
	}
}

func TestWorkgroupSizeConfigured(t *testing.T) {
	c := &Config{WorkgroupSizes: map[merge.Role]int{merge.NeuronUpdate: 64}}
	if got := c.WorkgroupSize(merge.NeuronUpdate); got != 64 {
		t.Fatalf("got %d, want 64", got)
	}
	if got := c.WorkgroupSize(merge.PresynapticUpdate); got != defaultWorkgroupSize {
		t.Fatalf("got %d, want %d", got, defaultWorkgroupSize)
	}
}

func TestPadSize(t *testing.T) {
	c := &Config{WorkgroupSizes: map[merge.Role]int{merge.NeuronUpdate: 32}}
	cases := []struct{ n, want int }{
		{0, 0}, {1, 32}, {32, 32}, {33, 64}, {100, 128},
	}
	for _, c2 := range cases {
		if got := c.PadSize(merge.NeuronUpdate, c2.n); got != c2.want {
			t.Errorf("PadSize(%d) = %d, want %d", c2.n, got, c2.want)
		}
	}
}
