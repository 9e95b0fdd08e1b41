package codec

import (
	"errors"
	"math"
	"strings"

	"timeronline/backend/internal/model"
)

// Epoch (2025-01-01T00:00:00Z in ms) is subtracted from timestamps before
// encoding to keep tokens short. Changing it breaks every minted link.
const Epoch int64 = 1735689600000

const (
	flagStopwatch = 1 << 0
	flagTarget    = 1 << 1
	flagActive    = 1 << 2
)

// sameAsSibling marks a field whose value equals an earlier field.
const sameAsSibling = "-"

var ErrMalformedToken = errors.New("malformed token")

// Encode serializes state as
// flags,pause,start,actual,duration,name with trailing empty fields removed.
func Encode(state model.TimerState) string {
	return encodeFields(state, EncodeInt, Epoch)
}

// Decode parses a token produced by Encode. It reports false when the token
// has fewer than two fields; callers then show model.DefaultState.
func Decode(token string) (model.TimerState, bool) {
	state, err := decodeFields(token, lenientDigits, Epoch)
	if err != nil {
		return model.TimerState{}, false
	}
	return state, true
}

// DecodeStrict is Decode that fails on characters outside the alphabet.
func DecodeStrict(token string) (model.TimerState, error) {
	return decodeFields(token, DecodeIntStrict, Epoch)
}

func lenientDigits(s string) (int64, error) {
	return DecodeInt(s), nil
}

func encodeFields(state model.TimerState, digits func(int64) string, epoch int64) string {
	flags := int64(0)
	if state.Kind == model.KindStopwatch {
		flags |= flagStopwatch
	}
	if state.Mode.IsTarget() {
		flags |= flagTarget
	}
	if state.IsActive {
		flags |= flagActive
	}

	pause := digits(floorMillis(state.PauseTime))

	start := ""
	if model.Present(state.StartTime) {
		start = digits(*state.StartTime - epoch)
	}

	actual := ""
	switch {
	case model.Present(state.ActualStartTime) && state.StartTime != nil && *state.ActualStartTime == *state.StartTime:
		actual = sameAsSibling
	case model.Present(state.ActualStartTime):
		actual = digits(*state.ActualStartTime - epoch)
	}

	duration := sameAsSibling
	if state.Duration != state.PauseTime && state.Duration != 0 && !math.IsNaN(state.Duration) {
		duration = digits(floorMillis(state.Duration))
	}

	fields := []string{digits(flags), pause, start, actual, duration, escapeName(state.TimerName)}
	return strings.TrimRight(strings.Join(fields, ","), ",")
}

func decodeFields(token string, digits func(string) (int64, error), epoch int64) (model.TimerState, error) {
	parts := strings.Split(token, ",")
	if len(parts) < 2 {
		return model.TimerState{}, ErrMalformedToken
	}

	flags, err := digits(parts[0])
	if err != nil {
		return model.TimerState{}, err
	}

	state := model.TimerState{Kind: model.KindCountdown, DisplayMode: model.DisplayNormal}
	if flags&flagStopwatch != 0 {
		state.Kind = model.KindStopwatch
	}
	state.Mode = state.Kind.ModeForTargetBit(flags&flagTarget != 0)
	state.IsActive = flags&flagActive != 0

	pauseMillis, err := digits(parts[1])
	if err != nil {
		return model.TimerState{}, err
	}
	state.PauseTime = float64(pauseMillis) / 1000

	if len(parts) > 2 && parts[2] != "" {
		start, err := digits(parts[2])
		if err != nil {
			return model.TimerState{}, err
		}
		state.StartTime = model.Millis(start + epoch)
	}

	if len(parts) > 3 && parts[3] != "" {
		if parts[3] == sameAsSibling {
			if state.StartTime != nil {
				state.ActualStartTime = model.Millis(*state.StartTime)
			}
		} else {
			actual, err := digits(parts[3])
			if err != nil {
				return model.TimerState{}, err
			}
			state.ActualStartTime = model.Millis(actual + epoch)
		}
	}

	state.Duration = state.PauseTime
	if len(parts) > 4 && parts[4] != "" && parts[4] != sameAsSibling {
		durationMillis, err := digits(parts[4])
		if err != nil {
			return model.TimerState{}, err
		}
		state.Duration = float64(durationMillis) / 1000
	}

	if len(parts) > 5 {
		state.TimerName = unescapeName(parts[5])
	}

	return state, nil
}

func floorMillis(seconds float64) int64 {
	ms := math.Floor(seconds * 1000)
	if math.IsNaN(ms) || math.IsInf(ms, 0) || ms >= math.MaxInt64 {
		return 0
	}
	return int64(ms)
}
