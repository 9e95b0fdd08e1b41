package clock

import (
	"errors"
	"math"
	"testing"
	"time"

	"timeronline/backend/internal/model"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func at(offset time.Duration) time.Time {
	return base.Add(offset)
}

func millisAt(offset time.Duration) *int64 {
	return model.Millis(at(offset).UnixMilli())
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func runningCountdown(pause float64) model.TimerState {
	return model.TimerState{
		Kind:      model.KindCountdown,
		Mode:      model.ModeDuration,
		IsActive:  true,
		PauseTime: pause,
		StartTime: millisAt(0),
		Duration:  pause,
	}
}

func TestEvaluateInactiveIsConstant(t *testing.T) {
	state := model.TimerState{Kind: model.KindCountdown, PauseTime: 42.5, Duration: 60, StartTime: millisAt(0)}
	first := Evaluate(state, at(0))
	for _, offset := range []time.Duration{-time.Hour, time.Second, 48 * time.Hour} {
		if got := Evaluate(state, at(offset)); got != first {
			t.Fatalf("expected constant reading, got %+v vs %+v", got, first)
		}
	}
	if first.DisplaySeconds != 42.5 || first.JustFinished || first.IsWaiting {
		t.Fatalf("unexpected reading %+v", first)
	}
}

func TestEvaluateCountdownDecreasesThenStaysAtZero(t *testing.T) {
	state := runningCountdown(10)
	prev := math.Inf(1)
	for ms := 0; ms <= 15000; ms += 250 {
		reading := Evaluate(state, at(time.Duration(ms)*time.Millisecond))
		if reading.DisplaySeconds > prev {
			t.Fatalf("countdown increased at %dms: %v > %v", ms, reading.DisplaySeconds, prev)
		}
		if ms >= 10000 && (reading.DisplaySeconds != 0 || !reading.JustFinished) {
			t.Fatalf("expected finished at %dms, got %+v", ms, reading)
		}
		prev = reading.DisplaySeconds
	}
}

func TestEvaluateStopwatchIncreases(t *testing.T) {
	state := model.TimerState{Kind: model.KindStopwatch, Mode: model.ModeImmediate, IsActive: true, PauseTime: 5, StartTime: millisAt(0)}
	prev := -1.0
	for s := 0; s < 120; s += 7 {
		reading := Evaluate(state, at(time.Duration(s)*time.Second))
		if reading.DisplaySeconds <= prev {
			t.Fatalf("stopwatch did not increase at %ds", s)
		}
		if !approx(reading.DisplaySeconds, 5+float64(s)) {
			t.Fatalf("expected %d, got %v", 5+s, reading.DisplaySeconds)
		}
		prev = reading.DisplaySeconds
	}
}

func TestEvaluateTerminalFreeze(t *testing.T) {
	state := model.TimerState{Kind: model.KindCountdown, IsActive: true, PauseTime: 5, StartTime: millisAt(-6 * time.Second), Duration: 5}
	reading := Evaluate(state, at(0))
	if reading.DisplaySeconds != 0 || !reading.JustFinished {
		t.Fatalf("expected frozen reading, got %+v", reading)
	}
}

func TestEvaluateScheduledStopwatchWaits(t *testing.T) {
	state := model.TimerState{Kind: model.KindStopwatch, Mode: model.ModeTarget, IsActive: true, StartTime: millisAt(10 * time.Second)}
	reading := Evaluate(state, at(0))
	if reading.DisplaySeconds != 0 || !reading.IsWaiting {
		t.Fatalf("expected waiting reading, got %+v", reading)
	}
	reading = Evaluate(state, at(12*time.Second))
	if reading.IsWaiting || !approx(reading.DisplaySeconds, 2) {
		t.Fatalf("expected 2s after start, got %+v", reading)
	}
}

func TestEvaluateClampsNegativePause(t *testing.T) {
	state := model.TimerState{Kind: model.KindStopwatch, IsActive: true, PauseTime: -30, StartTime: millisAt(0)}
	if got := Evaluate(state, at(10*time.Second)); got.DisplaySeconds != 0 {
		t.Fatalf("expected clamp to zero, got %v", got.DisplaySeconds)
	}
	state.IsActive = false
	if got := Evaluate(state, at(0)); got.DisplaySeconds != 0 {
		t.Fatalf("expected clamp to zero when paused, got %v", got.DisplaySeconds)
	}
}

func TestTogglePauseResume(t *testing.T) {
	state := runningCountdown(100)

	paused := Toggle(state, at(30*time.Second))
	if paused.IsActive || paused.StartTime != nil {
		t.Fatalf("expected paused state, got %+v", paused)
	}
	if !approx(paused.PauseTime, 70) {
		t.Fatalf("expected 70s remaining, got %v", paused.PauseTime)
	}

	resumed := Toggle(paused, at(60*time.Second))
	if !resumed.IsActive || *resumed.StartTime != at(60*time.Second).UnixMilli() {
		t.Fatalf("expected resumed at +60s, got %+v", resumed)
	}

	reading := Evaluate(resumed, at(65*time.Second))
	if !approx(reading.DisplaySeconds, 65) {
		t.Fatalf("expected 65s, got %v", reading.DisplaySeconds)
	}
	if state.StartTime == nil || !state.IsActive {
		t.Fatal("toggle must not mutate its input")
	}
}

func TestToggleStopwatchRecordsFirstStart(t *testing.T) {
	state := model.TimerState{Kind: model.KindStopwatch, Mode: model.ModeImmediate}

	running := Toggle(state, at(0))
	if running.ActualStartTime == nil || *running.ActualStartTime != at(0).UnixMilli() {
		t.Fatalf("expected actual start recorded, got %+v", running)
	}

	paused := Toggle(running, at(20*time.Second))
	if !approx(paused.PauseTime, 20) {
		t.Fatalf("expected 20s elapsed, got %v", paused.PauseTime)
	}

	resumed := Toggle(paused, at(time.Minute))
	if *resumed.ActualStartTime != at(0).UnixMilli() {
		t.Fatal("actual start must survive pause and resume")
	}
	if got := Evaluate(resumed, at(time.Minute+5*time.Second)); !approx(got.DisplaySeconds, 25) {
		t.Fatalf("expected 25s, got %v", got.DisplaySeconds)
	}
}

func TestReset(t *testing.T) {
	countdown := Toggle(runningCountdown(90), at(30*time.Second))
	countdown.ActualStartTime = millisAt(0)
	reset := Reset(countdown)
	if reset.IsActive || reset.StartTime != nil || reset.ActualStartTime != nil || reset.PauseTime != 90 {
		t.Fatalf("unexpected countdown reset %+v", reset)
	}

	stopwatch := model.TimerState{Kind: model.KindStopwatch, IsActive: true, PauseTime: 12, StartTime: millisAt(0), ActualStartTime: millisAt(0)}
	reset = Reset(stopwatch)
	if reset.PauseTime != 0 || reset.ActualStartTime != nil || reset.IsActive {
		t.Fatalf("unexpected stopwatch reset %+v", reset)
	}
}

func TestChangeTarget(t *testing.T) {
	state := runningCountdown(300)
	state.Mode = model.ModeTarget

	next, err := ChangeTarget(state, at(time.Hour), at(10*time.Second))
	if err != nil {
		t.Fatalf("change target: %v", err)
	}
	if !approx(next.PauseTime, 3590) || !next.IsActive || *next.StartTime != at(10*time.Second).UnixMilli() {
		t.Fatalf("unexpected state %+v", next)
	}
	if next.Duration != 300 {
		t.Fatalf("duration must not change, got %v", next.Duration)
	}

	past, err := ChangeTarget(state, at(-time.Hour), at(0))
	if err != nil || past.PauseTime != 0 {
		t.Fatalf("expected past target to clamp to zero, got %v, %v", past.PauseTime, err)
	}

	if _, err := ChangeTarget(runningCountdown(10), at(time.Hour), at(0)); !errors.Is(err, ErrNotTargetCountdown) {
		t.Fatalf("expected ErrNotTargetCountdown, got %v", err)
	}
}

func TestSettleFreezesFinishedCountdown(t *testing.T) {
	state := runningCountdown(5)
	next, reading, changed := Settle(state, at(6*time.Second))
	if !changed || !reading.JustFinished {
		t.Fatal("expected settle to freeze the countdown")
	}
	if next.IsActive || next.PauseTime != 0 || next.StartTime != nil {
		t.Fatalf("unexpected frozen state %+v", next)
	}
	if StatusOf(next, Evaluate(next, at(7*time.Second))) != StatusFinished {
		t.Fatal("expected finished status after freeze")
	}

	_, _, changed = Settle(state, at(time.Second))
	if changed {
		t.Fatal("running countdown must not be frozen early")
	}
}

func TestCreate(t *testing.T) {
	now := at(0)

	countdown, err := Create(CreateInput{Kind: model.KindCountdown, Mode: model.ModeDuration, DurationSeconds: 90, Name: "eggs"}, now)
	if err != nil {
		t.Fatalf("create countdown: %v", err)
	}
	if countdown.IsActive || countdown.StartTime != nil || countdown.PauseTime != 90 || countdown.Duration != 90 {
		t.Fatalf("unexpected countdown %+v", countdown)
	}
	if StatusOf(countdown, Evaluate(countdown, now)) != StatusIdle {
		t.Fatal("expected new countdown to be idle")
	}

	if _, err := Create(CreateInput{Kind: model.KindCountdown, Mode: model.ModeDuration}, now); !errors.Is(err, ErrInvalidDuration) {
		t.Fatalf("expected ErrInvalidDuration, got %v", err)
	}

	target, err := Create(CreateInput{Kind: model.KindCountdown, Mode: model.ModeTarget, Target: at(10 * time.Minute)}, now)
	if err != nil || !target.IsActive || target.PauseTime != 600 || target.Duration != 600 {
		t.Fatalf("unexpected target countdown %+v, %v", target, err)
	}

	immediate, err := Create(CreateInput{Kind: model.KindStopwatch}, now)
	if err != nil || immediate.Mode != model.ModeImmediate || !immediate.IsActive || *immediate.ActualStartTime != now.UnixMilli() {
		t.Fatalf("unexpected stopwatch %+v, %v", immediate, err)
	}

	scheduled, err := Create(CreateInput{Kind: model.KindStopwatch, Mode: model.ModeTarget, Target: at(time.Minute)}, now)
	if err != nil {
		t.Fatalf("create scheduled stopwatch: %v", err)
	}
	if StatusOf(scheduled, Evaluate(scheduled, now)) != StatusWaiting {
		t.Fatal("expected scheduled stopwatch to wait")
	}

	if _, err := Create(CreateInput{Kind: "hourglass"}, now); !errors.Is(err, ErrInvalidKind) {
		t.Fatalf("expected ErrInvalidKind, got %v", err)
	}
}

func TestEndTimeAndStartedAt(t *testing.T) {
	state := runningCountdown(90)
	end, ok := EndTime(state)
	if !ok || !end.Equal(at(90*time.Second)) {
		t.Fatalf("unexpected end time %v", end)
	}

	stopwatch := model.TimerState{Kind: model.KindStopwatch, ActualStartTime: millisAt(-time.Minute)}
	started, ok := StartedAt(stopwatch)
	if !ok || !started.Equal(at(-time.Minute)) {
		t.Fatalf("unexpected start %v", started)
	}
	if _, ok := EndTime(stopwatch); ok {
		t.Fatal("stopwatches have no end time")
	}
}

func TestZeroStartTimeCountsAsUnset(t *testing.T) {
	countdown := runningCountdown(90)
	countdown.StartTime = model.Millis(0)

	reading := Evaluate(countdown, at(time.Hour))
	if reading.DisplaySeconds != 90 || reading.JustFinished {
		t.Fatalf("zero start must not run since 1970, got %+v", reading)
	}
	if _, ok := EndTime(countdown); ok {
		t.Fatal("zero start has no end time")
	}

	stopwatch := model.TimerState{Kind: model.KindStopwatch, ActualStartTime: model.Millis(0)}
	if _, ok := StartedAt(stopwatch); ok {
		t.Fatal("zero actual start has no start instant")
	}
	if HasStarted(stopwatch) {
		t.Fatal("zero actual start must not count as started")
	}
}
