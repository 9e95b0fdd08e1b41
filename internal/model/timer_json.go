package model

import "encoding/json"

// timerStateJSON is the persisted shape, shared with browser storage.
type timerStateJSON struct {
	Type            Kind        `json:"type"`
	Active          bool        `json:"active"`
	StartTime       *int64      `json:"startTime"`
	PauseTime       float64     `json:"pauseTime"`
	Duration        float64     `json:"duration"`
	CountdownMode   Mode        `json:"countdownMode,omitempty"`
	StopwatchMode   Mode        `json:"stopwatchMode,omitempty"`
	ActualStartTime *int64      `json:"actualStartTime"`
	TimerName       string      `json:"timerName"`
	DisplayMode     DisplayMode `json:"displayMode,omitempty"`
}

func (s TimerState) MarshalJSON() ([]byte, error) {
	raw := timerStateJSON{
		Type:            s.Kind,
		Active:          s.IsActive,
		StartTime:       s.StartTime,
		PauseTime:       s.PauseTime,
		Duration:        s.Duration,
		ActualStartTime: s.ActualStartTime,
		TimerName:       s.TimerName,
		DisplayMode:     s.DisplayMode,
	}
	target := s.Mode.IsTarget()
	raw.CountdownMode = KindCountdown.ModeForTargetBit(target)
	if s.Kind == KindStopwatch {
		raw.StopwatchMode = KindStopwatch.ModeForTargetBit(target)
	}
	return json.Marshal(raw)
}

func (s *TimerState) UnmarshalJSON(data []byte) error {
	var raw timerStateJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	mode := raw.CountdownMode
	if raw.Type == KindStopwatch {
		mode = raw.StopwatchMode
		if mode == "" {
			mode = KindStopwatch.ModeForTargetBit(raw.CountdownMode.IsTarget())
		}
	}

	*s = TimerState{
		Kind:            raw.Type,
		Mode:            mode,
		IsActive:        raw.Active,
		PauseTime:       raw.PauseTime,
		StartTime:       raw.StartTime,
		ActualStartTime: raw.ActualStartTime,
		Duration:        raw.Duration,
		TimerName:       raw.TimerName,
		DisplayMode:     raw.DisplayMode,
	}
	*s = s.Normalize()
	return nil
}
