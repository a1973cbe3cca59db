package services

import (
	"context"
	"testing"
	"time"

	"marshmallow-backend/internal/events"
	"marshmallow-backend/internal/models"
	"marshmallow-backend/internal/repository/memstore"

	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

type fixture struct {
	store   *memstore.Store
	clock   *MonotonicClock
	bus     *events.Bus
	pairing *PairingService
	users   *UserService
	events  *EventService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New()
	clock := NewMonotonicClock()
	bus := events.NewBus("test")
	pairing := NewPairingService(store.Users(), store.Couples(), clock)
	return &fixture{
		store:   store,
		clock:   clock,
		bus:     bus,
		pairing: pairing,
		users:   NewUserService(store.Users(), pairing, testSecret, 0, clock),
		events:  NewEventService(store, pairing, clock, bus),
	}
}

func (f *fixture) signIn(t *testing.T, id, name string) *models.User {
	t.Helper()
	res, err := f.users.SignIn(context.Background(), &Identity{ID: id, DisplayName: name})
	require.NoError(t, err)
	return res.User
}

// pair signs in u1 and u2 and pairs them into one couple
func (f *fixture) pair(t *testing.T) *models.Couple {
	t.Helper()
	ctx := context.Background()
	f.signIn(t, "u1", "Ana")
	u2 := f.signIn(t, "u2", "Ben")

	couple, err := f.pairing.CreateCouple(ctx, "u1", u2.Code)
	require.NoError(t, err)
	_, err = f.pairing.JoinCouple(ctx, "u2", couple.ID)
	require.NoError(t, err)
	return couple
}

func nextEvent(t *testing.T, sub *events.Subscription) events.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	evt, err := sub.Next(ctx)
	require.NoError(t, err)
	return evt
}
