package schedcore

import (
	"fmt"
	"testing"
)

func TestDiscoverLocalCPUResourcesNamesSequentially(t *testing.T) {
	resources := DiscoverLocalCPUResources()
	if len(resources) == 0 {
		t.Fatalf("DiscoverLocalCPUResources returned no resources")
	}
	for i, rc := range resources {
		want := fmt.Sprintf("cpu%d", i)
		if rc.Name != want {
			t.Fatalf("resource[%d].Name = %q, want %q", i, rc.Name, want)
		}
	}
}

func TestClockTicksPerSecondPositive(t *testing.T) {
	if got := ClockTicksPerSecond(); got <= 0 {
		t.Fatalf("ClockTicksPerSecond() = %v, want > 0", got)
	}
}
