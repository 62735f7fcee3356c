package daemon

import (
	"fmt"
	"time"

	"github.com/eliteGoblin/focusd/notif_mon/internal/domain"
)

// staleAfter heartbeats missed before a live process is reported as hung.
const staleAfter = 3

// Liveness is the daemon's state as seen from another process.
type Liveness struct {
	Status  *domain.ListenerStatus // nil if no daemon has published a record
	Running bool                   // the recorded PID is alive
	Stale   bool                   // alive but the heartbeat stopped
}

// Connected reports whether a live daemon has the listener attached.
func (l Liveness) Connected() bool {
	return l.Running && !l.Stale && l.Status.State == domain.StateConnected
}

// CheckLiveness reads the status record and verifies its process.
func CheckLiveness(reg domain.StatusRegistry, procs domain.ProcessManager, heartbeat time.Duration, now time.Time) (Liveness, error) {
	status, err := reg.Load()
	if err != nil {
		return Liveness{}, fmt.Errorf("failed to read listener status: %w", err)
	}
	if status == nil {
		return Liveness{}, nil
	}

	l := Liveness{Status: status}
	l.Running = procs.IsRunning(status.PID)
	if l.Running && heartbeat > 0 {
		l.Stale = status.HeartbeatAge(now) > staleAfter*heartbeat
	}
	return l, nil
}
