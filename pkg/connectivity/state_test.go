package connectivity

import (
	"testing"
	"time"
)

func TestStateDegraded(t *testing.T) {
	tests := []struct {
		name  string
		state State
		want  bool
	}{
		{"healthy", State{Online: true, ConsecutiveFailures: 0}, false},
		{"one failure", State{Online: true, ConsecutiveFailures: 1}, true},
		{"at threshold", State{Online: true, ConsecutiveFailures: 3}, false},
		{"already offline", State{Online: false, ConsecutiveFailures: 5}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.Degraded(3); got != tt.want {
				t.Errorf("Degraded(3) = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStateOfflineFor(t *testing.T) {
	now := time.Now()

	online := State{Online: true, LastChange: now.Add(-time.Hour)}
	if got := online.OfflineFor(now); got != 0 {
		t.Errorf("OfflineFor() online = %v, want 0", got)
	}

	offline := State{Online: false, LastChange: now.Add(-10 * time.Minute)}
	if got := offline.OfflineFor(now); got != 10*time.Minute {
		t.Errorf("OfflineFor() = %v, want 10m", got)
	}

	unknown := State{Online: false}
	if got := unknown.OfflineFor(now); got != 0 {
		t.Errorf("OfflineFor() with zero LastChange = %v, want 0", got)
	}
}
