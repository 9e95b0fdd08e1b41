package clock

import (
	"time"

	"timeronline/backend/internal/model"
)

type Status string

const (
	StatusIdle     Status = "idle"
	StatusRunning  Status = "running"
	StatusWaiting  Status = "waiting"
	StatusPaused   Status = "paused"
	StatusFinished Status = "finished"
)

// StatusOf classifies a state given its current reading.
func StatusOf(state model.TimerState, reading Reading) Status {
	switch {
	case reading.IsWaiting:
		return StatusWaiting
	case reading.JustFinished:
		return StatusFinished
	case state.IsActive:
		return StatusRunning
	case state.Kind == model.KindCountdown && state.PauseTime <= 0:
		return StatusFinished
	case !HasStarted(state):
		return StatusIdle
	default:
		return StatusPaused
	}
}

// HasStarted reports whether the timer ever ran.
func HasStarted(state model.TimerState) bool {
	if state.Kind == model.KindCountdown {
		return state.PauseTime < state.Duration
	}
	return state.PauseTime > 0 || model.Present(state.ActualStartTime)
}

// EndTime is the deadline of a countdown with a start instant.
func EndTime(state model.TimerState) (time.Time, bool) {
	if state.Kind != model.KindCountdown || !model.Present(state.StartTime) {
		return time.Time{}, false
	}
	end := *state.StartTime + int64(state.PauseTime*1000)
	return time.UnixMilli(end).UTC(), true
}

// StartedAt is the original start instant of a stopwatch.
func StartedAt(state model.TimerState) (time.Time, bool) {
	if state.Kind != model.KindStopwatch || !model.Present(state.ActualStartTime) {
		return time.Time{}, false
	}
	return time.UnixMilli(*state.ActualStartTime).UTC(), true
}
