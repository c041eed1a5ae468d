package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/pixmart/internal/domain"
)

func TestDispatcherDeliversToSubscribers(t *testing.T) {
	d := NewInMemoryDispatcher()
	var got []EventType
	d.Subscribe(EventUserRegistered, func(_ context.Context, e Event) error {
		got = append(got, e.Type)
		return nil
	})

	identity := domain.Identity{ID: "u-1", Email: "a@b.com", Role: domain.RoleCustomer}
	require.NoError(t, d.Publish(context.Background(), NewEvent(EventUserRegistered, identity, nil)))
	require.NoError(t, d.Publish(context.Background(), NewEvent(EventUserLoggedIn, identity, nil)))

	assert.Equal(t, []EventType{EventUserRegistered}, got)
}

func TestDispatcherRunsEveryHandlerAndJoinsErrors(t *testing.T) {
	d := NewInMemoryDispatcher()
	calls := 0
	d.Subscribe(EventUserLoggedOut, func(context.Context, Event) error {
		calls++
		return errors.New("webhook down")
	})
	d.Subscribe(EventUserLoggedOut, func(context.Context, Event) error {
		calls++
		return nil
	})

	err := d.Publish(context.Background(), NewEvent(EventUserLoggedOut, domain.Identity{ID: "u-1"}, nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "webhook down")
	assert.Equal(t, 2, calls)
}

func TestNewEventStampsIDAndTime(t *testing.T) {
	a := NewEvent(EventUserLoggedIn, domain.Identity{ID: "u-1"}, SessionPayload{})
	b := NewEvent(EventUserLoggedIn, domain.Identity{ID: "u-1"}, SessionPayload{})
	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.False(t, a.Timestamp.IsZero())
}
