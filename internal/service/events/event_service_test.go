package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Domenick1991/eventbooking/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockEventRepository struct {
	mock.Mock
}

func (m *MockEventRepository) Create(ctx context.Context, event *domain.Event) error {
	return m.Called(ctx, event).Error(0)
}

func (m *MockEventRepository) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Event), args.Error(1)
}

func (m *MockEventRepository) ListByOrganizer(ctx context.Context, organizerID string) ([]domain.Event, error) {
	args := m.Called(ctx, organizerID)
	return args.Get(0).([]domain.Event), args.Error(1)
}

func (m *MockEventRepository) Resize(ctx context.Context, id string, totalCapacity int) (*domain.Event, error) {
	args := m.Called(ctx, id, totalCapacity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Event), args.Error(1)
}

func (m *MockEventRepository) MarkCancelled(ctx context.Context, id string, at time.Time) (*domain.Event, error) {
	args := m.Called(ctx, id, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Event), args.Error(1)
}

type MockCache struct {
	mock.Mock
}

func (m *MockCache) GetEvent(ctx context.Context, id string) (*domain.Event, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Event), args.Error(1)
}

func (m *MockCache) SetEvent(ctx context.Context, event *domain.Event) error {
	return m.Called(ctx, event).Error(0)
}

func (m *MockCache) InvalidateEvent(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

var (
	organizer = domain.Identity{UserID: "org-1", Role: domain.RoleOrganizer}
	attendee  = domain.Identity{UserID: "u-1", Role: domain.RoleAttendee}
)

func TestEventService_Create(t *testing.T) {
	mockRepo := &MockEventRepository{}
	service := NewEventService(mockRepo, nil)
	service.newID = func() string { return "e-1" }
	ctx := context.Background()

	mockRepo.On("Create", ctx, mock.MatchedBy(func(e *domain.Event) bool {
		return e.ID == "e-1" && e.OrganizerID == "org-1" && e.AvailableCapacity == 50
	})).Return(nil).Once()

	event, err := service.Create(ctx, organizer, CreateEventInput{
		Name:          "  Jazz Night ",
		StartsAt:      time.Date(2026, 11, 1, 19, 0, 0, 0, time.UTC),
		TotalCapacity: 50,
		PriceCents:    2500,
	})

	require.NoError(t, err)
	assert.Equal(t, "Jazz Night", event.Name)
	assert.Equal(t, 50, event.TotalCapacity)
	mockRepo.AssertExpectations(t)
}

func TestEventService_Create_Rejected(t *testing.T) {
	mockRepo := &MockEventRepository{}
	service := NewEventService(mockRepo, nil)
	ctx := context.Background()

	testCases := []struct {
		name  string
		who   domain.Identity
		input CreateEventInput
		kind  error
	}{
		{name: "Attendee", who: attendee, input: CreateEventInput{Name: "x", TotalCapacity: 1}, kind: domain.ErrUnauthorized},
		{name: "No name", who: organizer, input: CreateEventInput{TotalCapacity: 1}, kind: domain.ErrValidation},
		{name: "No capacity", who: organizer, input: CreateEventInput{Name: "x"}, kind: domain.ErrValidation},
		{name: "Negative price", who: organizer, input: CreateEventInput{Name: "x", TotalCapacity: 1, PriceCents: -1}, kind: domain.ErrValidation},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := service.Create(ctx, tc.who, tc.input)
			assert.ErrorIs(t, err, tc.kind)
		})
	}
	mockRepo.AssertNotCalled(t, "Create")
}

func TestEventService_GetByID_CacheHit(t *testing.T) {
	mockRepo := &MockEventRepository{}
	mockCache := &MockCache{}
	service := NewEventService(mockRepo, mockCache)
	ctx := context.Background()

	cached := &domain.Event{ID: "e-1", Name: "Jazz Night"}
	mockCache.On("GetEvent", ctx, "e-1").Return(cached, nil).Once()

	event, err := service.GetByID(ctx, "e-1")

	require.NoError(t, err)
	assert.Equal(t, cached, event)
	mockRepo.AssertNotCalled(t, "GetByID")
}

func TestEventService_GetByID_CacheMiss(t *testing.T) {
	mockRepo := &MockEventRepository{}
	mockCache := &MockCache{}
	service := NewEventService(mockRepo, mockCache)
	ctx := context.Background()

	stored := &domain.Event{ID: "e-1", Name: "Jazz Night"}
	mockCache.On("GetEvent", ctx, "e-1").Return(nil, nil).Once()
	mockRepo.On("GetByID", ctx, "e-1").Return(stored, nil).Once()
	mockCache.On("SetEvent", ctx, stored).Return(errors.New("redis down")).Once()

	event, err := service.GetByID(ctx, "e-1")

	require.NoError(t, err)
	assert.Equal(t, stored, event)
	mockCache.AssertExpectations(t)
}

func TestEventService_UpdateCapacity(t *testing.T) {
	mockRepo := &MockEventRepository{}
	mockCache := &MockCache{}
	service := NewEventService(mockRepo, mockCache)
	ctx := context.Background()

	current := &domain.Event{ID: "e-1", OrganizerID: "org-1", TotalCapacity: 10, AvailableCapacity: 4}
	resized := &domain.Event{ID: "e-1", OrganizerID: "org-1", TotalCapacity: 20, AvailableCapacity: 14}
	mockRepo.On("GetByID", ctx, "e-1").Return(current, nil).Once()
	mockRepo.On("Resize", ctx, "e-1", 20).Return(resized, nil).Once()
	mockCache.On("InvalidateEvent", ctx, "e-1").Return(nil).Once()

	event, err := service.UpdateCapacity(ctx, organizer, "e-1", 20)

	require.NoError(t, err)
	assert.Equal(t, 14, event.AvailableCapacity)
	mockRepo.AssertExpectations(t)
	mockCache.AssertExpectations(t)
}

func TestEventService_UpdateCapacity_BelowBooked(t *testing.T) {
	mockRepo := &MockEventRepository{}
	mockCache := &MockCache{}
	service := NewEventService(mockRepo, mockCache)
	ctx := context.Background()

	current := &domain.Event{ID: "e-1", OrganizerID: "org-1", TotalCapacity: 10, AvailableCapacity: 4}
	mockRepo.On("GetByID", ctx, "e-1").Return(current, nil).Once()
	mockRepo.On("Resize", ctx, "e-1", 5).Return(nil, domain.Validationf("capacity cannot be lower than the 6 tickets already booked")).Once()

	_, err := service.UpdateCapacity(ctx, organizer, "e-1", 5)

	assert.ErrorIs(t, err, domain.ErrValidation)
	mockCache.AssertNotCalled(t, "InvalidateEvent")
}

func TestEventService_UpdateCapacity_NotOwner(t *testing.T) {
	mockRepo := &MockEventRepository{}
	service := NewEventService(mockRepo, nil)
	ctx := context.Background()

	mockRepo.On("GetByID", ctx, "e-1").Return(&domain.Event{ID: "e-1", OrganizerID: "org-2"}, nil).Once()

	_, err := service.UpdateCapacity(ctx, organizer, "e-1", 20)

	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	mockRepo.AssertNotCalled(t, "Resize")
}

func TestEventService_UpdateCapacity_CancelledEvent(t *testing.T) {
	mockRepo := &MockEventRepository{}
	service := NewEventService(mockRepo, nil)
	ctx := context.Background()

	cancelledAt := time.Date(2026, 4, 20, 9, 0, 0, 0, time.UTC)
	mockRepo.On("GetByID", ctx, "e-1").
		Return(&domain.Event{ID: "e-1", OrganizerID: "org-1", TotalCapacity: 10, AvailableCapacity: 10, CancelledAt: &cancelledAt}, nil).Once()

	_, err := service.UpdateCapacity(ctx, organizer, "e-1", 20)

	assert.ErrorIs(t, err, domain.ErrInvalidState)
	assert.EqualError(t, err, "event e-1 has been cancelled")
	mockRepo.AssertNotCalled(t, "Resize")
}
