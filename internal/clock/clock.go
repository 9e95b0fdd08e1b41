// Package clock derives what a timer shows at a given instant and computes
// the next state for each user action. Every function is pure: state goes
// in, a new state comes out.
package clock

import (
	"errors"
	"math"
	"time"

	"timeronline/backend/internal/model"
)

var (
	ErrNotTargetCountdown = errors.New("only target-mode countdowns can change target")
	ErrInvalidDuration    = errors.New("countdown duration must be at least one second")
	ErrInvalidKind        = errors.New("unknown timer kind")
)

// Reading is the value to display at one instant.
type Reading struct {
	DisplaySeconds float64 `json:"displaySeconds"`
	// IsWaiting is set while a scheduled stopwatch has not reached its start.
	IsWaiting bool `json:"isWaiting"`
	// JustFinished tells the owner of the state to freeze it with Finish.
	JustFinished bool `json:"justFinished"`
}

// Evaluate computes the display value of state at now.
func Evaluate(state model.TimerState, now time.Time) Reading {
	if !state.IsActive || !model.Present(state.StartTime) {
		return Reading{DisplaySeconds: clampZero(state.PauseTime)}
	}

	elapsed := elapsedSeconds(*state.StartTime, now)

	if state.Kind == model.KindCountdown {
		remaining := state.PauseTime - elapsed
		if remaining <= 0 {
			return Reading{DisplaySeconds: 0, JustFinished: true}
		}
		return Reading{DisplaySeconds: remaining}
	}

	if elapsed < 0 {
		return Reading{DisplaySeconds: 0, IsWaiting: true}
	}
	return Reading{DisplaySeconds: clampZero(state.PauseTime + elapsed)}
}

// Toggle pauses a running timer or resumes a paused one.
func Toggle(state model.TimerState, now time.Time) model.TimerState {
	next := state.Clone()
	nowMillis := now.UnixMilli()

	if state.IsActive {
		start := nowMillis
		if model.Present(state.StartTime) {
			start = *state.StartTime
		}
		elapsed := float64(nowMillis-start) / 1000
		if state.Kind == model.KindCountdown {
			next.PauseTime -= elapsed
		} else {
			next.PauseTime += elapsed
		}
		next.StartTime = nil
		next.IsActive = false
		return next
	}

	next.IsActive = true
	next.StartTime = model.Millis(nowMillis)
	if state.Kind == model.KindStopwatch && !model.Present(state.ActualStartTime) {
		next.ActualStartTime = model.Millis(nowMillis)
	}
	return next
}

// Reset returns the timer to its never-started state.
func Reset(state model.TimerState) model.TimerState {
	next := state.Clone()
	next.IsActive = false
	next.StartTime = nil
	next.ActualStartTime = nil
	if state.Kind == model.KindCountdown {
		next.PauseTime = state.Duration
	} else {
		next.PauseTime = 0
	}
	return next
}

// ChangeTarget restarts a target countdown toward a new deadline. Duration
// is left untouched.
func ChangeTarget(state model.TimerState, target, now time.Time) (model.TimerState, error) {
	if state.Kind != model.KindCountdown || !state.Mode.IsTarget() {
		return state, ErrNotTargetCountdown
	}
	next := state.Clone()
	next.PauseTime = math.Max(0, float64(target.UnixMilli()-now.UnixMilli())/1000)
	next.StartTime = model.Millis(now.UnixMilli())
	next.IsActive = true
	return next, nil
}

// Finish freezes a countdown that reached zero.
func Finish(state model.TimerState) model.TimerState {
	next := state.Clone()
	next.IsActive = false
	next.PauseTime = 0
	next.StartTime = nil
	return next
}

// Settle evaluates state and applies Finish when the countdown just ended.
// The boolean reports whether the state changed.
func Settle(state model.TimerState, now time.Time) (model.TimerState, Reading, bool) {
	reading := Evaluate(state, now)
	if !reading.JustFinished {
		return state, reading, false
	}
	return Finish(state), reading, true
}

// CreateInput describes a new timer. Duration applies to duration-mode
// countdowns, Target to both target modes.
type CreateInput struct {
	Kind            model.Kind
	Mode            model.Mode
	DurationSeconds float64
	Target          time.Time
	Name            string
	DisplayMode     model.DisplayMode
}

// Create builds the initial state. Everything except a duration-mode
// countdown starts running immediately.
func Create(input CreateInput, now time.Time) (model.TimerState, error) {
	if !input.Kind.Valid() {
		return model.TimerState{}, ErrInvalidKind
	}
	mode := input.Mode
	if !mode.ValidFor(input.Kind) {
		mode = input.Kind.DefaultMode()
	}

	nowMillis := now.UnixMilli()
	state := model.TimerState{
		Kind:        input.Kind,
		Mode:        mode,
		TimerName:   input.Name,
		DisplayMode: input.DisplayMode,
	}

	switch {
	case input.Kind == model.KindCountdown && mode == model.ModeDuration:
		if input.DurationSeconds < 1 {
			return model.TimerState{}, ErrInvalidDuration
		}
		state.PauseTime = input.DurationSeconds
	case input.Kind == model.KindCountdown:
		state.PauseTime = math.Max(0, float64(input.Target.UnixMilli()-nowMillis)/1000)
		state.StartTime = model.Millis(nowMillis)
		state.ActualStartTime = model.Millis(nowMillis)
		state.IsActive = true
	case mode == model.ModeImmediate:
		state.StartTime = model.Millis(nowMillis)
		state.ActualStartTime = model.Millis(nowMillis)
		state.IsActive = true
	default:
		targetMillis := input.Target.UnixMilli()
		state.StartTime = model.Millis(targetMillis)
		state.ActualStartTime = model.Millis(targetMillis)
		state.IsActive = true
	}

	state.Duration = state.PauseTime
	return state.Normalize(), nil
}

func elapsedSeconds(startMillis int64, now time.Time) float64 {
	return float64(now.UnixMilli()-startMillis) / 1000
}

func clampZero(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
