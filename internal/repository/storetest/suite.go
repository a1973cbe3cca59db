// Package storetest holds a compliance suite every repository.Store must pass.
package storetest

import (
	"context"
	"testing"
	"time"

	"marshmallow-backend/internal/models"
	"marshmallow-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises the store contract. makeStore must return a clean, isolated store.
func Run(t *testing.T, makeStore func(t *testing.T) repository.Store) {
	t.Helper()

	t.Run("couple membership", func(t *testing.T) { testCoupleMembership(t, makeStore(t)) })
	t.Run("couple creation", func(t *testing.T) { testCreateForCreator(t, makeStore(t)) })
	t.Run("users", func(t *testing.T) { testUsers(t, makeStore(t)) })
	t.Run("messages", func(t *testing.T) { testMessages(t, makeStore(t)) })
	t.Run("check-ins", func(t *testing.T) { testCheckIns(t, makeStore(t)) })
	t.Run("memories", func(t *testing.T) { testMemories(t, makeStore(t)) })
	t.Run("device tokens", func(t *testing.T) { testDeviceTokens(t, makeStore(t)) })
	t.Run("presets", func(t *testing.T) { testPresets(t, makeStore(t)) })
}

func uid(prefix string) string { return prefix + "-" + uuid.NewString()[:8] }

func newCouple(t *testing.T, s repository.Store) (*models.Couple, string, string) {
	t.Helper()
	a, b := uid("u"), uid("u")
	c := &models.Couple{
		ID:           uuid.NewString(),
		Members:      []string{a, b},
		DisplayNames: map[string]string{a: "Ana", b: "Ben"},
		CreatedAt:    time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, s.Couples().Create(context.Background(), c))
	return c, a, b
}

func testCoupleMembership(t *testing.T, s repository.Store) {
	ctx := context.Background()
	c, a, b := newCouple(t, s)

	got, err := s.Couples().GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a, b}, got.Members)
	assert.Equal(t, "Ana", got.DisplayNames[a])

	byMember, err := s.Couples().FindByMember(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, c.ID, byMember.ID)

	assert.NoError(t, s.Couples().AddMember(ctx, c.ID, a), "existing member is a no-op")
	assert.ErrorIs(t, s.Couples().AddMember(ctx, c.ID, uid("u")), models.ErrCoupleFull)

	got, err = s.Couples().GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, got.Members, 2)

	solo := &models.Couple{ID: uuid.NewString(), Members: []string{a}, CreatedAt: time.Now()}
	assert.ErrorIs(t, s.Couples().Create(ctx, solo), models.ErrInvalidCoupleSize)

	_, err = s.Couples().GetByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func newUser(t *testing.T, s repository.Store) string {
	t.Helper()
	id := uid("u")
	_, err := s.Users().Upsert(context.Background(), &models.User{
		ID: id, DisplayName: "User", Code: uuid.NewString()[:6], Settings: models.DefaultSettings(), CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	return id
}

func testCreateForCreator(t *testing.T, s repository.Store) {
	ctx := context.Background()
	a, b, c := newUser(t, s), newUser(t, s), newUser(t, s)
	couple := func(x, y string) *models.Couple {
		return &models.Couple{
			ID:        uuid.NewString(),
			Members:   []string{x, y},
			CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
		}
	}

	first := couple(a, b)
	require.NoError(t, s.Couples().CreateForCreator(ctx, first, a))

	creator, err := s.Users().GetByID(ctx, a)
	require.NoError(t, err)
	require.NotNil(t, creator.CoupleID)
	assert.Equal(t, first.ID, *creator.CoupleID)

	invitee, err := s.Users().GetByID(ctx, b)
	require.NoError(t, err)
	assert.Nil(t, invitee.CoupleID, "the invitee joins later")

	// creator already paired
	second := couple(a, c)
	assert.ErrorIs(t, s.Couples().CreateForCreator(ctx, second, a), models.ErrAlreadyPaired)
	_, err = s.Couples().GetByID(ctx, second.ID)
	assert.ErrorIs(t, err, models.ErrNotFound, "a rejected couple leaves nothing behind")
	_, err = s.Couples().FindByMember(ctx, c)
	assert.ErrorIs(t, err, models.ErrNotFound)

	// invitee is already listed by a pending couple
	assert.ErrorIs(t, s.Couples().CreateForCreator(ctx, couple(c, b), c), models.ErrAlreadyPaired)
	creator, err = s.Users().GetByID(ctx, c)
	require.NoError(t, err)
	assert.Nil(t, creator.CoupleID)

	// unknown member
	assert.ErrorIs(t, s.Couples().CreateForCreator(ctx, couple(c, uid("ghost")), c), models.ErrNotFound)
	assert.ErrorIs(t, s.Couples().CreateForCreator(ctx, couple(c, c), c), models.ErrInvalidCoupleSize)
}

func testUsers(t *testing.T, s repository.Store) {
	ctx := context.Background()
	id := uid("u")
	code := uuid.NewString()[:6]

	u, err := s.Users().Upsert(ctx, &models.User{
		ID: id, DisplayName: "Ana", Code: code, Settings: models.DefaultSettings(), CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.Nil(t, u.CoupleID)

	// second sign-in keeps the code and refreshes the name
	u, err = s.Users().Upsert(ctx, &models.User{ID: id, DisplayName: "Ana B", Code: "ignored", CreatedAt: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, code, u.Code)
	assert.Equal(t, "Ana B", u.DisplayName)

	exists, err := s.Users().CodeExists(ctx, code)
	require.NoError(t, err)
	assert.True(t, exists)

	byCode, err := s.Users().GetByCode(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, id, byCode.ID)

	require.NoError(t, s.Users().SetCoupleID(ctx, id, "c-1"))
	require.NoError(t, s.Users().SetCoupleID(ctx, id, "c-1"))
	assert.ErrorIs(t, s.Users().SetCoupleID(ctx, id, "c-2"), models.ErrAlreadyPaired)

	settings := models.UserSettings{MorningReminder: "07:30", EveningReminder: "22:15", WifiOnlySync: true}
	require.NoError(t, s.Users().UpdateSettings(ctx, id, settings))
	u, err = s.Users().GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, settings, u.Settings)
	require.NotNil(t, u.CoupleID)
	assert.Equal(t, "c-1", *u.CoupleID)

	_, err = s.Users().GetByID(ctx, uid("missing"))
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func testMessages(t *testing.T, s repository.Store) {
	ctx := context.Background()
	c, a, b := newCouple(t, s)
	base := time.Now().UTC().Truncate(time.Microsecond)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Messages().Create(ctx, &models.Message{
			ID: uuid.NewString(), CoupleID: c.ID, SenderID: a, RecipientID: b,
			Body: "hi", Kind: models.MessageKindText, CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	list, err := s.Messages().ListByCouple(ctx, c.ID, 0)
	require.NoError(t, err)
	require.Len(t, list, 3)
	for i := 1; i < len(list); i++ {
		assert.True(t, list[i-1].CreatedAt.After(list[i].CreatedAt), "newest first")
	}

	limited, err := s.Messages().ListByCouple(ctx, c.ID, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	changed, err := s.Messages().MarkRead(ctx, list[0].ID)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = s.Messages().MarkRead(ctx, list[0].ID)
	require.NoError(t, err)
	assert.False(t, changed)

	got, err := s.Messages().GetByID(ctx, list[0].ID)
	require.NoError(t, err)
	assert.True(t, got.Read)

	_, err = s.Messages().MarkRead(ctx, uuid.NewString())
	assert.ErrorIs(t, err, models.ErrNotFound)

	self := &models.Message{ID: uuid.NewString(), CoupleID: c.ID, SenderID: a, RecipientID: a, Body: "x", Kind: models.MessageKindText, CreatedAt: base}
	assert.ErrorIs(t, s.Messages().Create(ctx, self), models.ErrInvalidEvent)

	// A writer whose clock lags still lands after the couple's newest message
	newest := list[0]
	late := &models.Message{
		ID: uuid.NewString(), CoupleID: c.ID, SenderID: b, RecipientID: a,
		Body: "late", Kind: models.MessageKindText, CreatedAt: base.Add(-time.Hour),
	}
	require.NoError(t, s.Messages().Create(ctx, late))
	assert.True(t, late.CreatedAt.After(newest.CreatedAt), "assigned %v, newest %v", late.CreatedAt, newest.CreatedAt)

	list, err = s.Messages().ListByCouple(ctx, c.ID, 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, late.ID, list[0].ID)

	n, err := s.Messages().DeleteByCouple(ctx, c.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)
}

func testCheckIns(t *testing.T, s repository.Store) {
	ctx := context.Background()
	c, a, b := newCouple(t, s)
	now := time.Now().UTC().Truncate(time.Microsecond)

	first := &models.CheckIn{ID: uuid.NewString(), CoupleID: c.ID, AuthorID: a, Date: "2026-02-14", Mood: models.MoodLoved, Gratitude: "you", CreatedAt: now}
	require.NoError(t, s.CheckIns().Create(ctx, first))

	dup := *first
	dup.ID = uuid.NewString()
	assert.ErrorIs(t, s.CheckIns().Create(ctx, &dup), models.ErrCheckInExists)

	partner := &models.CheckIn{ID: uuid.NewString(), CoupleID: c.ID, AuthorID: b, Date: "2026-02-14", Mood: models.MoodHappy, Gratitude: "tea", CreatedAt: now}
	require.NoError(t, s.CheckIns().Create(ctx, partner), "same date, different author")

	next := &models.CheckIn{ID: uuid.NewString(), CoupleID: c.ID, AuthorID: a, Date: "2026-02-15", Mood: models.MoodCalm, Gratitude: "rain", CreatedAt: now}
	require.NoError(t, s.CheckIns().Create(ctx, next))

	all, err := s.CheckIns().ListByCouple(ctx, c.ID, "", "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "2026-02-15", all[0].Date)

	ranged, err := s.CheckIns().ListByCouple(ctx, c.ID, "2026-02-14", "2026-02-14")
	require.NoError(t, err)
	assert.Len(t, ranged, 2)

	got, err := s.CheckIns().GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "you", got.Gratitude)
}

func testMemories(t *testing.T, s repository.Store) {
	ctx := context.Background()
	c, a, _ := newCouple(t, s)
	now := time.Now().UTC().Truncate(time.Microsecond)

	older := &models.Memory{
		ID: uuid.NewString(), CoupleID: c.ID, AuthorID: a, Title: "First date", Date: "2024-05-01",
		PhotoURLs: []string{"https://cdn/1.jpg", "https://cdn/2.jpg"}, Tags: []string{"date"},
		Source: models.MemorySourceManual, CreatedAt: now,
	}
	newer := &models.Memory{
		ID: uuid.NewString(), CoupleID: c.ID, AuthorID: a, Title: "Beach", Date: "2025-08-10",
		VideoURLs: []string{"https://cdn/v.mp4"}, Source: models.MemorySourceDevice, CreatedAt: now,
	}
	require.NoError(t, s.Memories().Create(ctx, older))
	require.NoError(t, s.Memories().Create(ctx, newer))

	list, err := s.Memories().ListByCouple(ctx, c.ID, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Beach", list[0].Title)

	got, err := s.Memories().GetByID(ctx, older.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://cdn/1.jpg", "https://cdn/2.jpg"}, got.PhotoURLs, "photo order is kept")
	assert.Equal(t, models.MemorySourceManual, got.Source)
}

func testDeviceTokens(t *testing.T, s repository.Store) {
	ctx := context.Background()
	id := uid("u")

	_, err := s.DeviceTokens().Get(ctx, id)
	assert.ErrorIs(t, err, models.ErrNotFound)

	require.NoError(t, s.DeviceTokens().Upsert(ctx, id, "token-1"))
	require.NoError(t, s.DeviceTokens().Upsert(ctx, id, "token-2"))

	got, err := s.DeviceTokens().Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "token-2", got.Address)
}

func testPresets(t *testing.T, s repository.Store) {
	ctx := context.Background()
	require.NoError(t, s.Presets().Upsert(ctx, &models.PresetPick{ID: "p-b", Text: "Thinking of you", Order: 2}))
	require.NoError(t, s.Presets().Upsert(ctx, &models.PresetPick{ID: "p-a", Text: "Good morning", Order: 1}))

	list, err := s.Presets().List(ctx)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(list), 2)

	idx := map[string]int{}
	for i, p := range list {
		idx[p.ID] = i
	}
	assert.Less(t, idx["p-a"], idx["p-b"])

	_, err = s.Presets().GetByID(ctx, "p-missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}
