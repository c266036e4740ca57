package policy

import "strings"

// Mode is the operating mode that decides the side effects of a check run.
type Mode string

// Mode constants
const (
	ModeObserve  Mode = "observe"
	ModeAdvise   Mode = "advise"
	ModeRedirect Mode = "redirect"
	ModeHeal     Mode = "heal"
	ModeBreaker  Mode = "breaker"
)

// HealLane is the remediation lane allowed to create follow-ups in heal mode.
const HealLane = "therapydrift"

// Modes lists every mode in escalation order.
var Modes = []Mode{ModeObserve, ModeAdvise, ModeRedirect, ModeHeal, ModeBreaker}

// IsValid reports whether m is a known mode.
func (m Mode) IsValid() bool {
	switch m {
	case ModeObserve, ModeAdvise, ModeRedirect, ModeHeal, ModeBreaker:
		return true
	}
	return false
}

// ParseMode normalizes s to a known mode. Unknown values map to redirect and
// ok is false. Only the policy loader should call this.
func ParseMode(s string) (m Mode, ok bool) {
	m = Mode(strings.ToLower(strings.TrimSpace(s)))
	if m.IsValid() {
		return m, true
	}
	return ModeRedirect, false
}

// Flags returns the (writeLog, createFollowups) permissions for lane. Modes
// are assumed valid; an unknown mode grants nothing.
func (m Mode) Flags(lane string) (writeLog, createFollowups bool) {
	switch m {
	case ModeObserve:
		return false, false
	case ModeAdvise, ModeBreaker:
		return true, false
	case ModeRedirect:
		return true, true
	case ModeHeal:
		return true, lane == HealLane
	}
	return false, false
}
