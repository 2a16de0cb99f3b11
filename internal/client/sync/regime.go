package sync

import "time"

const (
	DefaultFastInterval   = time.Second
	DefaultFastTicks      = 60
	DefaultLocalInterval  = 10 * time.Second
	MinLocalInterval      = time.Second
	DefaultRemoteInterval = 10 * time.Minute
	MinRemoteInterval     = 3 * time.Minute
)

type Regime int

const (
	RegimeNormal Regime = iota
	RegimeFast
)

func (r Regime) String() string {
	switch r {
	case RegimeFast:
		return "fast"
	default:
		return "normal"
	}
}

// RegimeScheduler picks the delay before the next tick of an entry. After a
// change the entry polls at the fast interval for a fixed number of ticks,
// then falls back to the normal interval.
type RegimeScheduler struct {
	fast      time.Duration
	normal    time.Duration
	fastTicks int
	remaining int
}

func NewRegimeScheduler(fast, normal time.Duration, fastTicks int) *RegimeScheduler {
	if fast <= 0 {
		fast = DefaultFastInterval
	}
	if normal < MinLocalInterval {
		normal = MinLocalInterval
	}
	if fastTicks < 0 {
		fastTicks = 0
	}
	return &RegimeScheduler{
		fast:      fast,
		normal:    normal,
		fastTicks: fastTicks,
	}
}

// EnterFast (re)starts the fast regime.
func (s *RegimeScheduler) EnterFast() {
	s.remaining = s.fastTicks
}

func (s *RegimeScheduler) Regime() Regime {
	if s.remaining > 0 {
		return RegimeFast
	}
	return RegimeNormal
}

// Next returns the delay until the next tick and consumes one fast tick.
func (s *RegimeScheduler) Next() time.Duration {
	if s.remaining > 0 {
		s.remaining--
		return s.fast
	}
	return s.normal
}
