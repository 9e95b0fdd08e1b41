package service

import (
	"bytes"
	"html/template"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"timeronline/backend/internal/clock"
	"timeronline/backend/internal/codec"
	"timeronline/backend/internal/model"
)

const FormatDefault = "default"

// ShareService reads share tokens without touching storage. Every result is
// a pure function of the token and the current time.
type ShareService struct {
	clock    clockwork.Clock
	baseURL  string
	location *time.Location
}

type Inspection struct {
	State        model.TimerState `json:"state"`
	Format       string           `json:"format"`
	Token        string           `json:"token"`
	Reading      clock.Reading    `json:"reading"`
	Status       clock.Status     `json:"status"`
	Display      string           `json:"display"`
	Centiseconds int              `json:"centiseconds"`
	EndTime      *time.Time       `json:"endTime,omitempty"`
	ServerTime   time.Time        `json:"serverTime"`
}

// PreviewCard is the static summary rendered into link previews.
type PreviewCard struct {
	Title     string `json:"title"`
	Time      string `json:"time"`
	TypeLabel string `json:"typeLabel"`
	Status    string `json:"status"`
	Info      string `json:"info,omitempty"`
}

func NewShareService(clk clockwork.Clock, publicBaseURL string, location *time.Location) *ShareService {
	if location == nil {
		location = time.UTC
	}
	return &ShareService{
		clock:    clk,
		baseURL:  strings.TrimRight(publicBaseURL, "/"),
		location: location,
	}
}

// Inspect decodes token with every known format. Tokens nothing can read
// fall back to the default ten minute countdown.
func (s *ShareService) Inspect(token string) Inspection {
	now := s.clock.Now().UTC()
	state, format := s.decode(token)
	reading := clock.Evaluate(state, now)

	result := Inspection{
		State:        state,
		Format:       format,
		Token:        codec.Encode(state),
		Reading:      reading,
		Status:       clock.StatusOf(state, reading),
		Display:      clock.Format(reading.DisplaySeconds, state.DisplayMode),
		Centiseconds: clock.Centiseconds(reading.DisplaySeconds),
		ServerTime:   now,
	}
	if state.IsActive {
		if end, ok := clock.EndTime(state); ok {
			result.EndTime = &end
		}
	}
	return result
}

func (s *ShareService) Preview(token string) PreviewCard {
	now := s.clock.Now()
	state, _ := s.decode(token)
	reading := clock.Evaluate(state, now)

	typeLabel := "Timer"
	if state.Kind == model.KindStopwatch {
		typeLabel = "Stopwatch"
	}
	title := strings.TrimSpace(state.TimerName)
	if title == "" {
		title = typeLabel
	}

	card := PreviewCard{
		Title:     title,
		Time:      clock.FormatWhole(reading.DisplaySeconds),
		TypeLabel: typeLabel,
	}

	switch {
	case state.IsActive && !reading.JustFinished:
		card.Status = "Running"
	case state.Kind == model.KindCountdown && (reading.JustFinished || state.PauseTime <= 0):
		card.Status = "Finished"
	default:
		card.Status = "Paused"
	}

	if model.Present(state.StartTime) {
		if end, ok := clock.EndTime(state); ok && state.IsActive {
			card.Info = "Ends " + s.wallClock(end)
		} else if started, ok := clock.StartedAt(state); ok {
			card.Info = "Started " + s.wallClock(started)
		}
	}
	return card
}

var redirectPage = template.Must(template.New("share").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>{{.Title}}</title>
    <meta property="og:title" content="{{.Title}}">
    <meta property="og:description" content="{{.Description}}">
    <meta property="og:url" content="{{.AppURL}}">
    <meta name="twitter:card" content="summary">
    <meta name="twitter:title" content="{{.Title}}">
    <meta name="twitter:description" content="{{.Description}}">
    <meta http-equiv="refresh" content="0;url={{.AppURL}}">
    <script>window.location.href = {{.AppURL}};</script>
</head>
<body>
    <p>Opening timer... <a href="{{.AppURL}}">Continue</a></p>
</body>
</html>
`))

// RedirectPage renders the page crawlers read for link previews and browsers
// follow into the app. The token is embedded unchanged. ok is false when
// token is empty and the caller should redirect to the app root instead.
func (s *ShareService) RedirectPage(token string) (page []byte, ok bool, err error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, false, nil
	}

	card := s.Preview(token)
	data := struct {
		Title       string
		Description string
		AppURL      string
	}{
		Title:       strings.TrimSpace(card.Time + " " + card.Title + " | Online Timer"),
		Description: card.TypeLabel + " " + strings.ToLower(card.Status) + infoSuffix(card.Info),
		AppURL:      s.baseURL + "/#*v=" + token,
	}

	var buf bytes.Buffer
	if err := redirectPage.Execute(&buf, data); err != nil {
		return nil, false, err
	}
	return buf.Bytes(), true, nil
}

func (s *ShareService) decode(token string) (model.TimerState, string) {
	if strings.TrimSpace(token) == "" {
		return model.DefaultState(), FormatDefault
	}
	state, format, ok := codec.DecodeCompat(token)
	if !ok {
		return model.DefaultState(), FormatDefault
	}
	return state, format
}

func (s *ShareService) wallClock(t time.Time) string {
	return t.In(s.location).Format("01/02 3:04 PM")
}

func infoSuffix(info string) string {
	if info == "" {
		return ""
	}
	return ", " + strings.ToLower(info[:1]) + info[1:]
}
