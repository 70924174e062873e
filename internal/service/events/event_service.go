package events

import (
	"context"
	"strings"
	"time"

	"github.com/Domenick1991/eventbooking/internal/domain"
	"github.com/Domenick1991/eventbooking/internal/logger"
	"github.com/Domenick1991/eventbooking/internal/repository"
	"github.com/google/uuid"
)

type EventUseCase interface {
	Create(ctx context.Context, who domain.Identity, input CreateEventInput) (*domain.Event, error)
	GetByID(ctx context.Context, id string) (*domain.Event, error)
	ListMine(ctx context.Context, who domain.Identity) ([]domain.Event, error)
	UpdateCapacity(ctx context.Context, who domain.Identity, id string, totalCapacity int) (*domain.Event, error)
}

// EventCache holds event snapshots read by the public event page.
type EventCache interface {
	GetEvent(ctx context.Context, id string) (*domain.Event, error)
	SetEvent(ctx context.Context, event *domain.Event) error
	InvalidateEvent(ctx context.Context, id string) error
}

type CreateEventInput struct {
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	Location      string    `json:"location"`
	Category      string    `json:"category"`
	StartsAt      time.Time `json:"starts_at"`
	EndsAt        time.Time `json:"ends_at"`
	PriceCents    int64     `json:"price_cents"`
	TotalCapacity int       `json:"total_capacity"`
}

type EventService struct {
	repo  repository.EventRepository
	cache EventCache
	newID func() string
}

func NewEventService(repo repository.EventRepository, cache EventCache) *EventService {
	return &EventService{repo: repo, cache: cache, newID: uuid.NewString}
}

func (s *EventService) Create(ctx context.Context, who domain.Identity, input CreateEventInput) (*domain.Event, error) {
	if !who.IsOrganizer() {
		return nil, domain.Unauthorizedf("only organizers can create events")
	}

	event := &domain.Event{
		ID:                s.newID(),
		OrganizerID:       who.UserID,
		Name:              strings.TrimSpace(input.Name),
		Description:       input.Description,
		Location:          input.Location,
		Category:          input.Category,
		StartsAt:          input.StartsAt,
		EndsAt:            input.EndsAt,
		PriceCents:        input.PriceCents,
		TotalCapacity:     input.TotalCapacity,
		AvailableCapacity: input.TotalCapacity,
	}
	if err := event.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, event); err != nil {
		return nil, err
	}

	logger.WithContext(ctx).Info("event created", "event_id", event.ID, "capacity", event.TotalCapacity)
	return event, nil
}

func (s *EventService) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	if s.cache != nil {
		if cached, err := s.cache.GetEvent(ctx, id); err == nil && cached != nil {
			return cached, nil
		}
	}

	event, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.SetEvent(ctx, event); err != nil {
			logger.WithContext(ctx).Warn("failed to cache event", "event_id", id, "error", err)
		}
	}
	return event, nil
}

func (s *EventService) ListMine(ctx context.Context, who domain.Identity) ([]domain.Event, error) {
	if !who.IsOrganizer() {
		return nil, domain.Unauthorizedf("only organizers have events")
	}
	return s.repo.ListByOrganizer(ctx, who.UserID)
}

// UpdateCapacity changes the total capacity, keeping already booked seats.
func (s *EventService) UpdateCapacity(ctx context.Context, who domain.Identity, id string, totalCapacity int) (*domain.Event, error) {
	if !who.IsOrganizer() {
		return nil, domain.Unauthorizedf("only organizers can edit events")
	}
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.OrganizerID != who.UserID {
		return nil, domain.Unauthorizedf("not authorized to edit this event")
	}
	if current.Cancelled() {
		return nil, domain.InvalidStatef("event %s has been cancelled", id)
	}

	updated, err := s.repo.Resize(ctx, id, totalCapacity)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.InvalidateEvent(ctx, id); err != nil {
			logger.WithContext(ctx).Warn("failed to invalidate event cache", "event_id", id, "error", err)
		}
	}
	return updated, nil
}

var _ EventUseCase = (*EventService)(nil)
