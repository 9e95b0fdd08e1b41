package service

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"timeronline/backend/internal/broadcast"
	"timeronline/backend/internal/clock"
	"timeronline/backend/internal/codec"
	apperrors "timeronline/backend/internal/errors"
	"timeronline/backend/internal/model"
	"timeronline/backend/internal/repository"
	"timeronline/backend/internal/scheduler"
)

const (
	timerIDLength   = 6
	sharedIDLength  = 4
	sharedIDPrefix  = "shared_"
	maxTimerNameLen = 100
	idAttempts      = 5
	timerIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
)

var (
	errUnchanged          = errors.New("timer unchanged")
	errInvalidDisplayMode = apperrors.BadRequest("invalid_display_mode", "unknown display mode").
		WithDetails([]model.DisplayMode{model.DisplayNormal, model.DisplayMinutes, model.DisplaySeconds})
)

type TimerService struct {
	store   repository.TimerStore
	bus     broadcast.Bus
	clock   clockwork.Clock
	expiry  *scheduler.Expiry
	baseURL string
}

type TimerView struct {
	ID           string           `json:"id"`
	OwnerID      string           `json:"ownerId"`
	Name         string           `json:"name"`
	State        model.TimerState `json:"state"`
	Token        string           `json:"token"`
	Version      int              `json:"version"`
	Reading      clock.Reading    `json:"reading"`
	Status       clock.Status     `json:"status"`
	Display      string           `json:"display"`
	Centiseconds int              `json:"centiseconds"`
	EndTime      *time.Time       `json:"endTime,omitempty"`
	StartedAt    *time.Time       `json:"startedAt,omitempty"`
	CreatedAt    time.Time        `json:"createdAt"`
	UpdatedAt    time.Time        `json:"updatedAt"`
	ServerTime   time.Time        `json:"serverTime"`
}

type CreateTimerInput struct {
	Kind            model.Kind
	Mode            model.Mode
	DurationSeconds float64
	Target          *time.Time
	Name            string
	DisplayMode     model.DisplayMode
}

type ShareLinks struct {
	Token    string `json:"token"`
	URL      string `json:"url"`
	ShareURL string `json:"shareUrl"`
}

type ImportResult struct {
	Timer  TimerView `json:"timer"`
	Format string    `json:"format"`
}

func NewTimerService(store repository.TimerStore, bus broadcast.Bus, clk clockwork.Clock, publicBaseURL string) *TimerService {
	s := &TimerService{
		store:   store,
		bus:     bus,
		clock:   clk,
		baseURL: strings.TrimRight(publicBaseURL, "/"),
	}
	s.expiry = scheduler.NewExpiry(clk, s.Expire)
	return s
}

// Close stops pending countdown deadlines.
func (s *TimerService) Close() {
	s.expiry.Stop()
}

func (s *TimerService) Create(ctx context.Context, ownerID string, input CreateTimerInput) (*TimerView, *apperrors.APIError) {
	now := s.now()

	clockInput, apiErr := s.validateCreate(input)
	if apiErr != nil {
		return nil, apiErr
	}
	state, err := clock.Create(clockInput, now)
	if err != nil {
		if errors.Is(err, clock.ErrInvalidDuration) {
			return nil, apperrors.BadRequest("invalid_duration", err.Error())
		}
		return nil, apperrors.BadRequest("invalid_kind", err.Error())
	}

	timer, apiErr := s.insert(ctx, ownerID, state, now, func() string { return randomID(timerIDLength) })
	if apiErr != nil {
		return nil, apiErr
	}

	log.Debug().Str("timer_id", timer.ID).Str("kind", string(state.Kind)).Str("mode", string(state.Mode)).Msg("timer created")
	s.afterWrite(ctx, timer, broadcast.EventCreated, now)
	view := s.view(timer, now)
	return &view, nil
}

// Get returns a timer, freezing it first when its countdown already ended.
func (s *TimerService) Get(ctx context.Context, ownerID, id string) (*TimerView, *apperrors.APIError) {
	timer, apiErr := s.load(ctx, ownerID, id)
	if apiErr != nil {
		return nil, apiErr
	}

	now := s.now()
	if settled := s.settle(ctx, timer, now); settled != nil {
		timer = settled
	}
	view := s.view(timer, now)
	return &view, nil
}

func (s *TimerService) List(ctx context.Context, ownerID string) ([]TimerView, *apperrors.APIError) {
	timers, err := s.store.ListTimers(ctx, ownerID)
	if err != nil {
		log.Error().Err(err).Str("owner_id", ownerID).Msg("failed to list timers")
		return nil, apperrors.Internal("failed to list timers")
	}

	now := s.now()
	views := make([]TimerView, 0, len(timers))
	for i := range timers {
		timer := &timers[i]
		if settled := s.settle(ctx, timer, now); settled != nil {
			timer = settled
		}
		views = append(views, s.view(timer, now))
	}
	return views, nil
}

func (s *TimerService) Toggle(ctx context.Context, ownerID, id string, baseVersion int) (*TimerView, *apperrors.APIError) {
	return s.mutate(ctx, ownerID, id, baseVersion, func(state model.TimerState, now time.Time) (model.TimerState, *apperrors.APIError) {
		return clock.Toggle(state, now), nil
	})
}

func (s *TimerService) Reset(ctx context.Context, ownerID, id string, baseVersion int) (*TimerView, *apperrors.APIError) {
	return s.mutate(ctx, ownerID, id, baseVersion, func(state model.TimerState, _ time.Time) (model.TimerState, *apperrors.APIError) {
		return clock.Reset(state), nil
	})
}

func (s *TimerService) ChangeTarget(ctx context.Context, ownerID, id string, baseVersion int, target time.Time) (*TimerView, *apperrors.APIError) {
	return s.mutate(ctx, ownerID, id, baseVersion, func(state model.TimerState, now time.Time) (model.TimerState, *apperrors.APIError) {
		next, err := clock.ChangeTarget(state, target, now)
		if err != nil {
			return state, apperrors.BadRequest("not_target_countdown", err.Error())
		}
		return next, nil
	})
}

func (s *TimerService) SetDisplayMode(ctx context.Context, ownerID, id string, baseVersion int, mode model.DisplayMode) (*TimerView, *apperrors.APIError) {
	if !mode.Valid() {
		return nil, errInvalidDisplayMode
	}
	return s.mutate(ctx, ownerID, id, baseVersion, func(state model.TimerState, _ time.Time) (model.TimerState, *apperrors.APIError) {
		next := state.Clone()
		next.DisplayMode = mode
		return next, nil
	})
}

func (s *TimerService) Delete(ctx context.Context, ownerID, id string) *apperrors.APIError {
	timer, apiErr := s.load(ctx, ownerID, id)
	if apiErr != nil {
		return apiErr
	}

	if err := s.store.DeleteTimer(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.TimerNotFound()
		}
		log.Error().Err(err).Str("timer_id", id).Msg("failed to delete timer")
		return apperrors.Internal("failed to delete timer")
	}

	s.expiry.Cancel(id)
	timer.Version++
	s.publish(ctx, timer, broadcast.EventDeleted, s.now())
	return nil
}

// Share builds the links that reproduce the timer anywhere without the
// server: the app link carries the token in its fragment.
func (s *TimerService) Share(ctx context.Context, ownerID, id string) (*ShareLinks, *apperrors.APIError) {
	view, apiErr := s.Get(ctx, ownerID, id)
	if apiErr != nil {
		return nil, apiErr
	}
	return s.links(view.Token), nil
}

// Import adopts a shared token as a new timer of the caller.
func (s *TimerService) Import(ctx context.Context, ownerID, token string) (*ImportResult, *apperrors.APIError) {
	state, format, ok := codec.DecodeCompat(token)
	if !ok {
		return nil, apperrors.InvalidToken("")
	}

	name, apiErr := validName(state.TimerName)
	if apiErr != nil {
		return nil, apiErr
	}
	state.TimerName = name

	now := s.now()
	if state.IsActive && !model.Present(state.StartTime) {
		state.StartTime = model.Millis(now.UnixMilli())
	}
	state, _, _ = clock.Settle(state.Normalize(), now)

	timer, apiErr := s.insert(ctx, ownerID, state, now, func() string { return sharedIDPrefix + randomID(sharedIDLength) })
	if apiErr != nil {
		return nil, apiErr
	}

	log.Debug().Str("timer_id", timer.ID).Str("format", format).Msg("timer imported")
	s.afterWrite(ctx, timer, broadcast.EventCreated, now)
	return &ImportResult{Timer: s.view(timer, now), Format: format}, nil
}

// Subscription is a live view of one timer: a snapshot and the changes
// committed after it.
type Subscription struct {
	Snapshot TimerView
	gate     *broadcast.Gate
	cancel   func()
}

// Start releases changes newer than Snapshot to the handler, in order of
// arrival. Call it after Snapshot has been shown.
func (sub *Subscription) Start() {
	sub.gate.Open(sub.Snapshot.ID, sub.Snapshot.Version)
}

func (sub *Subscription) Cancel() {
	sub.cancel()
}

// Watch subscribes to a timer before reading it, so no change committed
// after the snapshot is lost and nothing older than it is delivered.
func (s *TimerService) Watch(ctx context.Context, ownerID, id string, fn broadcast.Handler) (*Subscription, *apperrors.APIError) {
	if _, apiErr := s.load(ctx, ownerID, id); apiErr != nil {
		return nil, apiErr
	}

	gate := broadcast.NewGate(fn)
	cancel, err := s.bus.Subscribe(id, gate.Handle)
	if err != nil {
		log.Error().Err(err).Str("timer_id", id).Msg("failed to subscribe to timer")
		return nil, apperrors.Internal("failed to watch timer")
	}

	snapshot, apiErr := s.Get(ctx, ownerID, id)
	if apiErr != nil {
		cancel()
		return nil, apiErr
	}
	return &Subscription{Snapshot: *snapshot, gate: gate, cancel: cancel}, nil
}

// Expire freezes a countdown whose deadline passed. It is called by the
// deadline scheduler.
func (s *TimerService) Expire(ctx context.Context, id string) {
	timer, err := s.store.GetTimer(ctx, id)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			log.Error().Err(err).Str("timer_id", id).Msg("failed to load expired timer")
		}
		return
	}
	s.settle(ctx, timer, s.now())
}

func (s *TimerService) View(timer *model.Timer) TimerView {
	return s.view(timer, s.now())
}

func (s *TimerService) validateCreate(input CreateTimerInput) (clock.CreateInput, *apperrors.APIError) {
	if !input.Kind.Valid() {
		return clock.CreateInput{}, apperrors.BadRequest("invalid_kind", "type must be countdown or stopwatch")
	}
	mode := input.Mode
	if mode == "" {
		mode = input.Kind.DefaultMode()
	}
	if !mode.ValidFor(input.Kind) {
		return clock.CreateInput{}, apperrors.BadRequest("invalid_mode", "mode is not valid for this timer type")
	}

	displayMode := input.DisplayMode
	if displayMode == "" {
		displayMode = model.DisplayNormal
	}
	if !displayMode.Valid() {
		return clock.CreateInput{}, errInvalidDisplayMode
	}

	name, apiErr := validName(input.Name)
	if apiErr != nil {
		return clock.CreateInput{}, apiErr
	}

	out := clock.CreateInput{
		Kind:            input.Kind,
		Mode:            mode,
		DurationSeconds: input.DurationSeconds,
		Name:            name,
		DisplayMode:     displayMode,
	}
	if mode.IsTarget() {
		if input.Target == nil || input.Target.IsZero() {
			return clock.CreateInput{}, apperrors.BadRequest("invalid_target", "target time is required")
		}
		out.Target = *input.Target
	}
	return out, nil
}

func validName(name string) (string, *apperrors.APIError) {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) > maxTimerNameLen {
		return "", apperrors.BadRequest("invalid_name", "name is too long")
	}
	return name, nil
}

func (s *TimerService) insert(ctx context.Context, ownerID string, state model.TimerState, now time.Time, newID func() string) (*model.Timer, *apperrors.APIError) {
	timer := &model.Timer{
		OwnerID:   ownerID,
		State:     state,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for attempt := 0; attempt < idAttempts; attempt++ {
		timer.ID = newID()
		err := s.store.CreateTimer(ctx, timer)
		if err == nil {
			return timer, nil
		}
		if !errors.Is(err, repository.ErrExists) {
			log.Error().Err(err).Str("owner_id", ownerID).Msg("failed to create timer")
			return nil, apperrors.Internal("failed to create timer")
		}
	}
	return nil, apperrors.Internal("failed to allocate timer id")
}

func (s *TimerService) load(ctx context.Context, ownerID, id string) (*model.Timer, *apperrors.APIError) {
	timer, err := s.store.GetTimer(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.TimerNotFound()
	}
	if err != nil {
		log.Error().Err(err).Str("timer_id", id).Msg("failed to get timer")
		return nil, apperrors.Internal("failed to get timer")
	}
	if timer.OwnerID != ownerID {
		return nil, apperrors.TimerNotFound()
	}
	return timer, nil
}

// mutate applies op to the stored timer inside one store transaction. A
// positive baseVersion must match the stored version.
func (s *TimerService) mutate(
	ctx context.Context,
	ownerID, id string,
	baseVersion int,
	op func(state model.TimerState, now time.Time) (model.TimerState, *apperrors.APIError),
) (*TimerView, *apperrors.APIError) {
	now := s.now()
	var finished *model.Timer

	updated, err := s.store.UpdateTimer(ctx, id, func(timer *model.Timer) error {
		finished = nil
		if timer.OwnerID != ownerID {
			return apperrors.TimerNotFound()
		}
		if baseVersion > 0 && baseVersion != timer.Version {
			return apperrors.StateConflict(s.view(timer, now))
		}

		settled, _, changed := clock.Settle(timer.State, now)
		if changed {
			timer.Version++
			finished = &model.Timer{ID: timer.ID, OwnerID: timer.OwnerID, State: settled.Clone(), Version: timer.Version}
		}
		next, apiErr := op(settled, now)
		if apiErr != nil {
			return apiErr
		}

		timer.State = next.Normalize()
		timer.Version++
		timer.UpdatedAt = now
		return nil
	})
	if err != nil {
		var apiErr *apperrors.APIError
		if errors.As(err, &apiErr) {
			return nil, apiErr
		}
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.TimerNotFound()
		}
		log.Error().Err(err).Str("timer_id", id).Msg("failed to update timer")
		return nil, apperrors.Internal("failed to update timer")
	}

	if finished != nil {
		log.Debug().Str("timer_id", finished.ID).Int("version", finished.Version).Msg("countdown finished")
		s.publish(ctx, finished, broadcast.EventFinished, now)
	}
	s.afterWrite(ctx, updated, broadcast.EventUpdated, now)
	view := s.view(updated, now)
	return &view, nil
}

// settle persists the frozen state of a countdown that reached zero. It
// returns nil when nothing had to change.
func (s *TimerService) settle(ctx context.Context, timer *model.Timer, now time.Time) *model.Timer {
	if _, _, changed := clock.Settle(timer.State, now); !changed {
		return nil
	}

	updated, err := s.store.UpdateTimer(ctx, timer.ID, func(current *model.Timer) error {
		next, _, changed := clock.Settle(current.State, now)
		if !changed {
			return errUnchanged
		}
		current.State = next
		current.Version++
		current.UpdatedAt = now
		return nil
	})
	if err != nil {
		if !errors.Is(err, errUnchanged) && !errors.Is(err, repository.ErrNotFound) {
			log.Error().Err(err).Str("timer_id", timer.ID).Msg("failed to finish countdown")
		}
		return nil
	}

	log.Debug().Str("timer_id", updated.ID).Int("version", updated.Version).Msg("countdown finished")
	s.expiry.Cancel(updated.ID)
	s.publish(ctx, updated, broadcast.EventFinished, now)
	return updated
}

func (s *TimerService) afterWrite(ctx context.Context, timer *model.Timer, eventType broadcast.EventType, now time.Time) {
	s.reschedule(timer)
	s.publish(ctx, timer, eventType, now)
}

func (s *TimerService) reschedule(timer *model.Timer) {
	state := timer.State
	if state.Kind == model.KindCountdown && state.IsActive {
		if end, ok := clock.EndTime(state); ok {
			s.expiry.Schedule(timer.ID, end)
			return
		}
	}
	s.expiry.Cancel(timer.ID)
}

func (s *TimerService) publish(ctx context.Context, timer *model.Timer, eventType broadcast.EventType, now time.Time) {
	state := timer.State.Clone()
	event := broadcast.Event{
		ID:      uuid.NewString(),
		Type:    eventType,
		TimerID: timer.ID,
		OwnerID: timer.OwnerID,
		Version: timer.Version,
		At:      now,
	}
	if eventType != broadcast.EventDeleted {
		event.Token = codec.Encode(state)
		event.State = &state
	}
	if err := s.bus.Publish(ctx, event); err != nil {
		log.Warn().Err(err).Str("timer_id", timer.ID).Str("event", string(eventType)).Msg("failed to publish timer event")
	}
}

func (s *TimerService) view(timer *model.Timer, now time.Time) TimerView {
	reading := clock.Evaluate(timer.State, now)
	view := TimerView{
		ID:           timer.ID,
		OwnerID:      timer.OwnerID,
		Name:         timer.DisplayName(),
		State:        timer.State,
		Token:        codec.Encode(timer.State),
		Version:      timer.Version,
		Reading:      reading,
		Status:       clock.StatusOf(timer.State, reading),
		Display:      clock.Format(reading.DisplaySeconds, timer.State.DisplayMode),
		Centiseconds: clock.Centiseconds(reading.DisplaySeconds),
		CreatedAt:    timer.CreatedAt,
		UpdatedAt:    timer.UpdatedAt,
		ServerTime:   now,
	}
	if timer.State.IsActive {
		if end, ok := clock.EndTime(timer.State); ok {
			view.EndTime = &end
		}
	}
	if started, ok := clock.StartedAt(timer.State); ok {
		view.StartedAt = &started
	}
	return view
}

func (s *TimerService) links(token string) *ShareLinks {
	return &ShareLinks{
		Token:    token,
		URL:      s.baseURL + "/#*" + token,
		ShareURL: s.baseURL + "/api/share?v=" + url.QueryEscape(token),
	}
}

func (s *TimerService) now() time.Time {
	return s.clock.Now().UTC()
}

// randomID draws n characters from the random bytes of v4 UUIDs. The
// version and variant bytes are skipped, and bytes past the largest multiple
// of the alphabet size are rejected so every character is equally likely.
func randomID(n int) string {
	limit := 256 / len(timerIDAlphabet) * len(timerIDAlphabet)
	out := make([]byte, 0, n)
	for len(out) < n {
		id := uuid.New()
		for i, b := range id {
			if i == 6 || i == 8 || int(b) >= limit {
				continue
			}
			out = append(out, timerIDAlphabet[int(b)%len(timerIDAlphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out)
}
