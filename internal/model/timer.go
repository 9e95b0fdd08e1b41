package model

import "time"

type Kind string

const (
	KindCountdown Kind = "countdown"
	KindStopwatch Kind = "stopwatch"
)

// Mode records how a timer's initial value was established. Countdowns use
// ModeDuration or ModeTarget, stopwatches ModeImmediate or ModeTarget.
type Mode string

const (
	ModeDuration  Mode = "duration"
	ModeImmediate Mode = "immediate"
	ModeTarget    Mode = "target"
)

type DisplayMode string

const (
	DisplayNormal  DisplayMode = "normal"
	DisplayMinutes DisplayMode = "minutes"
	DisplaySeconds DisplayMode = "seconds"
)

const (
	DefaultCountdownSeconds = 10 * 60
)

func (k Kind) Valid() bool {
	return k == KindCountdown || k == KindStopwatch
}

// DefaultMode is the non-target mode for the kind.
func (k Kind) DefaultMode() Mode {
	if k == KindStopwatch {
		return ModeImmediate
	}
	return ModeDuration
}

// ModeForTargetBit maps the single wire bit back to a mode. The bit means
// "target" for both kinds; its cleared value depends on the kind.
func (k Kind) ModeForTargetBit(target bool) Mode {
	if target {
		return ModeTarget
	}
	return k.DefaultMode()
}

func (m Mode) IsTarget() bool {
	return m == ModeTarget
}

// ValidFor reports whether m is one of the modes allowed for kind k.
func (m Mode) ValidFor(k Kind) bool {
	switch m {
	case ModeTarget:
		return true
	case ModeDuration:
		return k == KindCountdown
	case ModeImmediate:
		return k == KindStopwatch
	default:
		return false
	}
}

func (d DisplayMode) Valid() bool {
	return d == DisplayNormal || d == DisplayMinutes || d == DisplaySeconds
}

// TimerState is the full state of one timer. Timestamps are epoch
// milliseconds; PauseTime and Duration are seconds.
type TimerState struct {
	Kind            Kind
	Mode            Mode
	IsActive        bool
	PauseTime       float64
	StartTime       *int64
	ActualStartTime *int64
	Duration        float64
	TimerName       string
	DisplayMode     DisplayMode
}

// DefaultState is what a viewer falls back to when no shared state can be
// decoded.
func DefaultState() TimerState {
	return TimerState{
		Kind:        KindCountdown,
		Mode:        ModeDuration,
		PauseTime:   DefaultCountdownSeconds,
		Duration:    DefaultCountdownSeconds,
		DisplayMode: DisplayNormal,
	}
}

// Normalize fills empty enum fields with their defaults and coerces a mode
// that does not belong to the kind.
func (s TimerState) Normalize() TimerState {
	if !s.Kind.Valid() {
		s.Kind = KindCountdown
	}
	if !s.Mode.ValidFor(s.Kind) {
		s.Mode = s.Kind.DefaultMode()
	}
	if !s.DisplayMode.Valid() {
		s.DisplayMode = DisplayNormal
	}
	return s
}

// Clone returns a copy that shares no pointers with s.
func (s TimerState) Clone() TimerState {
	out := s
	out.StartTime = cloneMillis(s.StartTime)
	out.ActualStartTime = cloneMillis(s.ActualStartTime)
	return out
}

func Millis(v int64) *int64 {
	return &v
}

// Present reports whether a timestamp is set. Zero counts as unset, the
// same as a missing value in browser storage.
func Present(ms *int64) bool {
	return ms != nil && *ms != 0
}

func cloneMillis(v *int64) *int64 {
	if v == nil {
		return nil
	}
	return Millis(*v)
}

type Timer struct {
	ID        string     `json:"id"`
	OwnerID   string     `json:"ownerId"`
	State     TimerState `json:"state"`
	Version   int        `json:"version"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// DisplayName is the label shown for a timer without a name.
func (t *Timer) DisplayName() string {
	if t.State.TimerName != "" {
		return t.State.TimerName
	}
	if t.State.Kind == KindStopwatch {
		return "Stopwatch"
	}
	return "Timer"
}
