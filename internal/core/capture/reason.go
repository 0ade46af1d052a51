package capture

// Reason names one independent cause for suspending capture.
type Reason string

const (
	ReasonUserIdle      Reason = "user_idle"
	ReasonSessionLocked Reason = "session_locked"
	ReasonDiskPressure  Reason = "disk_pressure"
)

func (r Reason) String() string { return string(r) }

// Signal is the handle a single source uses to assert or clear its reason.
// Each source owns exactly one Signal; no other component touches that
// reason.
type Signal struct {
	c      *Controller
	reason Reason
}

// Reason returns the reason this handle controls.
func (s *Signal) Reason() Reason { return s.reason }

// Assert adds the reason to the suspend set. Asserting twice is a no-op.
func (s *Signal) Assert() { s.c.assert(s.reason) }

// Clear removes the reason from the suspend set. Clearing an unasserted
// reason is a no-op.
func (s *Signal) Clear() { s.c.clear(s.reason) }

// Set asserts when on is true and clears otherwise.
func (s *Signal) Set(on bool) {
	if on {
		s.Assert()
		return
	}
	s.Clear()
}

// Asserted reports whether the reason is currently in the suspend set.
func (s *Signal) Asserted() bool { return s.c.has(s.reason) }
