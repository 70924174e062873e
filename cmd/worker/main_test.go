package main

import (
	"context"
	"errors"
	"testing"

	"github.com/Domenick1991/eventbooking/internal/domain"
	kafkaGo "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockDeliverer struct {
	mock.Mock
}

func (m *MockDeliverer) Notify(ctx context.Context, n domain.Notification) error {
	return m.Called(ctx, n).Error(0)
}

func TestDeliver_RetriesThenSucceeds(t *testing.T) {
	out := &MockDeliverer{}
	n := domain.Notification{Kind: domain.NotificationBookingConfirmed, To: "guest@example.com", BookingID: "b-1"}
	out.On("Notify", mock.Anything, n).Return(errors.New("smtp down")).Once()
	out.On("Notify", mock.Anything, n).Return(nil).Once()

	msg := kafkaGo.Message{Value: []byte(`{"kind":"booking_confirmed","to":"guest@example.com","booking_id":"b-1"}`)}
	err := deliver(out)(context.Background(), msg)

	assert.NoError(t, err)
	out.AssertExpectations(t)
}

func TestDeliver_SkipsUndecodable(t *testing.T) {
	out := &MockDeliverer{}

	err := deliver(out)(context.Background(), kafkaGo.Message{Value: []byte("{broken"), Offset: 7})

	assert.NoError(t, err)
	out.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)
}

func TestDeliver_StopsOnShutdown(t *testing.T) {
	out := &MockDeliverer{}
	out.On("Notify", mock.Anything, mock.Anything).Return(errors.New("smtp down")).Once()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	msg := kafkaGo.Message{Value: []byte(`{"kind":"otp","to":"guest@example.com"}`)}
	assert.NoError(t, deliver(out)(ctx, msg))
	out.AssertNumberOfCalls(t, "Notify", 1)
}
