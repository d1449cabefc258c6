package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gatherhall/server/internal/domain/ids"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// createAttempts bounds how many times Create restarts code issuance after an
// insert loses the probe-to-insert race on the code unique constraint.
const createAttempts = 3

// lifecycleTransitions enumerates the legal event status changes.
var lifecycleTransitions = map[Status][]Status{
	StatusDraft:     {StatusPublished, StatusCancelled},
	StatusPublished: {StatusCancelled, StatusCompleted},
}

type Service struct {
	repo     Repository
	issuer   *ids.Issuer
	validate *validator.Validate
	logger   zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		issuer:   ids.NewIssuer(repo.CodeExists),
		validate: validator.New(),
		logger:   logger.With().Str("component", "events").Logger(),
	}
}

// Create validates the params, issues a public code, and inserts the event in
// draft state. A code unique-constraint violation restarts issuance with a
// fresh probe sequence.
func (s *Service) Create(ctx context.Context, params CreateParams) (*Event, error) {
	if err := s.validate.Struct(params); err != nil {
		return nil, fmt.Errorf("invalid event params: %w", err)
	}
	if !params.EndsAt.IsZero() && params.EndsAt.Before(params.StartsAt) {
		return nil, fmt.Errorf("invalid event params: ends before it starts")
	}

	var lastErr error
	for attempt := 0; attempt < createAttempts; attempt++ {
		code, err := s.issuer.Issue(ctx)
		if err != nil {
			return nil, err
		}

		id, err := ids.NewULID()
		if err != nil {
			return nil, fmt.Errorf("generate event id: %w", err)
		}

		now := time.Now().UTC()
		event := Event{
			ID:          id,
			Code:        code,
			Name:        params.Name,
			Description: params.Description,
			Status:      StatusDraft,
			Capacity:    params.Capacity,
			OrganizerID: params.OrganizerID,
			StartsAt:    params.StartsAt,
			EndsAt:      params.EndsAt,
			Location:    params.Location,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		err = s.repo.Create(ctx, event)
		if err == nil {
			s.logger.Info().Str("event_id", id).Str("code", code).Msg("event created")
			return &event, nil
		}
		if !errors.Is(err, ErrCodeTaken) {
			return nil, fmt.Errorf("create event: %w", err)
		}

		s.logger.Warn().Str("code", code).Msg("event code collided on insert, reissuing")
		lastErr = err
	}
	return nil, fmt.Errorf("create event: %w", lastErr)
}

func (s *Service) GetByCode(ctx context.Context, code string) (*Event, error) {
	normalized, err := ids.NormalizeCode(code)
	if err != nil {
		return nil, ErrEventNotFound
	}
	return s.repo.GetByCode(ctx, normalized)
}

func (s *Service) GetByID(ctx context.Context, id string) (*Event, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListByOrganizer(ctx context.Context, organizerID string) ([]Event, error) {
	return s.repo.ListByOrganizer(ctx, organizerID)
}

// Publish moves a draft event to published.
func (s *Service) Publish(ctx context.Context, id string) (*Event, error) {
	return s.changeStatus(ctx, id, StatusPublished)
}

// Cancel moves a draft or published event to cancelled.
func (s *Service) Cancel(ctx context.Context, id string) (*Event, error) {
	return s.changeStatus(ctx, id, StatusCancelled)
}

// Complete moves a published event to completed.
func (s *Service) Complete(ctx context.Context, id string) (*Event, error) {
	return s.changeStatus(ctx, id, StatusCompleted)
}

func (s *Service) changeStatus(ctx context.Context, id string, to Status) (*Event, error) {
	event, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if event.Status == to {
		return event, nil
	}
	if !lifecycleAllows(event.Status, to) {
		return nil, InvalidLifecycleError{From: event.Status, To: to}
	}

	if err := s.repo.UpdateStatus(ctx, id, to); err != nil {
		return nil, fmt.Errorf("update event status: %w", err)
	}

	s.logger.Info().Str("event_id", id).Str("from", string(event.Status)).Str("to", string(to)).Msg("event status changed")
	event.Status = to
	return event, nil
}

func lifecycleAllows(from, to Status) bool {
	for _, next := range lifecycleTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
