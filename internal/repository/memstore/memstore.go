// Package memstore is an in-memory repository.Store used for local runs and tests.
// It enforces the same uniqueness and membership rules as the PostgreSQL schema.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"marshmallow-backend/internal/models"
	"marshmallow-backend/internal/repository"
)

// Store holds every collection behind one lock
type Store struct {
	mu       sync.RWMutex
	users    map[string]models.User
	couples  map[string]models.Couple
	messages map[string]models.Message
	checkIns map[string]models.CheckIn
	memories map[string]models.Memory
	presets  map[string]models.PresetPick
	devices  map[string]models.DeviceToken
}

var _ repository.Store = (*Store)(nil)

// New returns an empty store
func New() *Store {
	return &Store{
		users:    make(map[string]models.User),
		couples:  make(map[string]models.Couple),
		messages: make(map[string]models.Message),
		checkIns: make(map[string]models.CheckIn),
		memories: make(map[string]models.Memory),
		presets:  make(map[string]models.PresetPick),
		devices:  make(map[string]models.DeviceToken),
	}
}

func (s *Store) Users() repository.Users               { return users{s} }
func (s *Store) Couples() repository.Couples           { return couples{s} }
func (s *Store) Messages() repository.Messages         { return messages{s} }
func (s *Store) CheckIns() repository.CheckIns         { return checkIns{s} }
func (s *Store) Memories() repository.Memories         { return memories{s} }
func (s *Store) Presets() repository.Presets           { return presets{s} }
func (s *Store) DeviceTokens() repository.DeviceTokens { return devices{s} }

// nextCreatedAt returns the creation time for a new record of the couple:
// the proposed time, moved past the couple's newest record when needed.
func nextCreatedAt[T any](records map[string]T, coupleID string, proposed time.Time, key func(T) (string, time.Time)) time.Time {
	if proposed.IsZero() {
		proposed = time.Now()
	}
	proposed = proposed.Truncate(time.Microsecond)
	for _, rec := range records {
		couple, ts := key(rec)
		if couple == coupleID && !ts.Before(proposed) {
			proposed = ts.Add(time.Microsecond)
		}
	}
	return proposed
}

func notFound(what string) error { return fmt.Errorf("%s %w", what, models.ErrNotFound) }

func cloneStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return append([]string(nil), values...)
}

// --- users ---

type users struct{ s *Store }

func cloneUser(u models.User) *models.User {
	if u.CoupleID != nil {
		id := *u.CoupleID
		u.CoupleID = &id
	}
	if u.AvatarURL != nil {
		url := *u.AvatarURL
		u.AvatarURL = &url
	}
	return &u
}

func (r users) Upsert(_ context.Context, user *models.User) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if existing, ok := r.s.users[user.ID]; ok {
		existing.DisplayName = user.DisplayName
		if user.AvatarURL != nil {
			existing.AvatarURL = user.AvatarURL
		}
		r.s.users[user.ID] = existing
		return cloneUser(existing), nil
	}
	for _, u := range r.s.users {
		if u.Code == user.Code {
			return nil, fmt.Errorf("%w: pair code already taken", models.ErrValidation)
		}
	}
	stored := *cloneUser(*user)
	r.s.users[user.ID] = stored
	return cloneUser(stored), nil
}

func (r users) GetByID(_ context.Context, id string) (*models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, notFound("user")
	}
	return cloneUser(u), nil
}

func (r users) GetByCode(_ context.Context, code string) (*models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, u := range r.s.users {
		if u.Code == code {
			return cloneUser(u), nil
		}
	}
	return nil, notFound("user")
}

func (r users) CodeExists(ctx context.Context, code string) (bool, error) {
	_, err := r.GetByCode(ctx, code)
	return err == nil, nil
}

func (r users) SetCoupleID(_ context.Context, userID, coupleID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[userID]
	if !ok {
		return notFound("user")
	}
	if u.CoupleID != nil {
		if *u.CoupleID == coupleID {
			return nil
		}
		return models.ErrAlreadyPaired
	}
	u.CoupleID = &coupleID
	r.s.users[userID] = u
	return nil
}

func (r users) UpdateSettings(_ context.Context, userID string, settings models.UserSettings) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[userID]
	if !ok {
		return notFound("user")
	}
	u.Settings = settings
	r.s.users[userID] = u
	return nil
}

// --- couples ---

type couples struct{ s *Store }

func cloneCouple(c models.Couple) *models.Couple {
	c.Members = cloneStrings(c.Members)
	names := make(map[string]string, len(c.DisplayNames))
	for k, v := range c.DisplayNames {
		names[k] = v
	}
	c.DisplayNames = names
	return &c
}

func (r couples) Create(_ context.Context, couple *models.Couple) error {
	if len(couple.Members) != 2 || couple.Members[0] == couple.Members[1] {
		return models.ErrInvalidCoupleSize
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.couples[couple.ID]; ok {
		return fmt.Errorf("couple %s already exists", couple.ID)
	}
	r.s.couples[couple.ID] = *cloneCouple(*couple)
	return nil
}

func (r couples) CreateForCreator(_ context.Context, couple *models.Couple, creatorID string) error {
	if len(couple.Members) != 2 || couple.Members[0] == couple.Members[1] {
		return models.ErrInvalidCoupleSize
	}
	if !couple.HasMember(creatorID) {
		return fmt.Errorf("%w: creator %s is not a member", models.ErrValidation, creatorID)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, id := range couple.Members {
		u, ok := r.s.users[id]
		if !ok {
			return notFound("couple member")
		}
		if u.CoupleID != nil {
			return models.ErrAlreadyPaired
		}
	}
	for _, c := range r.s.couples {
		if c.HasMember(couple.Members[0]) || c.HasMember(couple.Members[1]) {
			return models.ErrAlreadyPaired
		}
	}
	if _, ok := r.s.couples[couple.ID]; ok {
		return fmt.Errorf("couple %s already exists", couple.ID)
	}

	r.s.couples[couple.ID] = *cloneCouple(*couple)
	creator := r.s.users[creatorID]
	id := couple.ID
	creator.CoupleID = &id
	r.s.users[creatorID] = creator
	return nil
}

func (r couples) GetByID(_ context.Context, id string) (*models.Couple, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.couples[id]
	if !ok {
		return nil, notFound("couple")
	}
	return cloneCouple(c), nil
}

func (r couples) FindByMember(_ context.Context, userID string) (*models.Couple, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var found *models.Couple
	for _, c := range r.s.couples {
		if c.HasMember(userID) && (found == nil || c.CreatedAt.After(found.CreatedAt)) {
			found = cloneCouple(c)
		}
	}
	if found == nil {
		return nil, notFound("couple")
	}
	return found, nil
}

func (r couples) AddMember(_ context.Context, coupleID, userID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.couples[coupleID]
	if !ok {
		return notFound("couple")
	}
	if c.HasMember(userID) {
		return nil
	}
	if len(c.Members) >= 2 {
		return models.ErrCoupleFull
	}
	c.Members = append(cloneStrings(c.Members), userID)
	r.s.couples[coupleID] = c
	return nil
}

// --- messages ---

type messages struct{ s *Store }

func (r messages) Create(_ context.Context, msg *models.Message) error {
	if msg.SenderID == msg.RecipientID {
		return fmt.Errorf("%w: rejected by store constraints", models.ErrInvalidEvent)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.couples[msg.CoupleID]; !ok {
		return fmt.Errorf("failed to create message: couple %s does not exist", msg.CoupleID)
	}
	if _, ok := r.s.messages[msg.ID]; ok {
		return fmt.Errorf("failed to create message: duplicate id %s", msg.ID)
	}
	msg.CreatedAt = nextCreatedAt(r.s.messages, msg.CoupleID, msg.CreatedAt, func(e models.Message) (string, time.Time) {
		return e.CoupleID, e.CreatedAt
	})
	r.s.messages[msg.ID] = *msg
	return nil
}

func (r messages) GetByID(_ context.Context, id string) (*models.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	m, ok := r.s.messages[id]
	if !ok {
		return nil, notFound("message")
	}
	return &m, nil
}

func newerFirst(a, b time.Time, idA, idB string) bool {
	if !a.Equal(b) {
		return a.After(b)
	}
	return idA > idB
}

func (r messages) ListByCouple(_ context.Context, coupleID string, limit int) ([]*models.Message, error) {
	r.s.mu.RLock()
	var out []*models.Message
	for _, m := range r.s.messages {
		if m.CoupleID == coupleID {
			m := m
			out = append(out, &m)
		}
	}
	r.s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return newerFirst(out[i].CreatedAt, out[j].CreatedAt, out[i].ID, out[j].ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r messages) MarkRead(_ context.Context, id string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.messages[id]
	if !ok {
		return false, notFound("message")
	}
	if m.Read {
		return false, nil
	}
	m.Read = true
	r.s.messages[id] = m
	return true, nil
}

func (r messages) DeleteByCouple(_ context.Context, coupleID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, m := range r.s.messages {
		if m.CoupleID == coupleID {
			delete(r.s.messages, id)
			n++
		}
	}
	return n, nil
}

// --- check-ins ---

type checkIns struct{ s *Store }

func (r checkIns) Create(_ context.Context, c *models.CheckIn) error {
	if _, err := time.Parse(models.DateLayout, c.Date); err != nil {
		return fmt.Errorf("%w: invalid date %q", models.ErrValidation, c.Date)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.couples[c.CoupleID]; !ok {
		return fmt.Errorf("failed to create check-in: couple %s does not exist", c.CoupleID)
	}
	for _, existing := range r.s.checkIns {
		if existing.AuthorID == c.AuthorID && existing.Date == c.Date {
			return models.ErrCheckInExists
		}
	}
	c.CreatedAt = nextCreatedAt(r.s.checkIns, c.CoupleID, c.CreatedAt, func(e models.CheckIn) (string, time.Time) {
		return e.CoupleID, e.CreatedAt
	})
	r.s.checkIns[c.ID] = *c
	return nil
}

func (r checkIns) GetByID(_ context.Context, id string) (*models.CheckIn, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.checkIns[id]
	if !ok {
		return nil, notFound("check-in")
	}
	return &c, nil
}

func (r checkIns) ListByCouple(_ context.Context, coupleID, from, to string) ([]*models.CheckIn, error) {
	r.s.mu.RLock()
	var out []*models.CheckIn
	for _, c := range r.s.checkIns {
		if c.CoupleID != coupleID {
			continue
		}
		// YYYY-MM-DD compares correctly as a string
		if (from != "" && c.Date < from) || (to != "" && c.Date > to) {
			continue
		}
		c := c
		out = append(out, &c)
	}
	r.s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date > out[j].Date
		}
		return newerFirst(out[i].CreatedAt, out[j].CreatedAt, out[i].ID, out[j].ID)
	})
	return out, nil
}

func (r checkIns) DeleteByCouple(_ context.Context, coupleID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, c := range r.s.checkIns {
		if c.CoupleID == coupleID {
			delete(r.s.checkIns, id)
			n++
		}
	}
	return n, nil
}

// --- memories ---

type memories struct{ s *Store }

func cloneMemory(m models.Memory) *models.Memory {
	m.PhotoURLs = cloneStrings(m.PhotoURLs)
	m.VideoURLs = cloneStrings(m.VideoURLs)
	m.Tags = cloneStrings(m.Tags)
	return &m
}

func (r memories) Create(_ context.Context, m *models.Memory) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.couples[m.CoupleID]; !ok {
		return fmt.Errorf("failed to create memory: couple %s does not exist", m.CoupleID)
	}
	m.CreatedAt = nextCreatedAt(r.s.memories, m.CoupleID, m.CreatedAt, func(e models.Memory) (string, time.Time) {
		return e.CoupleID, e.CreatedAt
	})
	r.s.memories[m.ID] = *cloneMemory(*m)
	return nil
}

func (r memories) GetByID(_ context.Context, id string) (*models.Memory, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	m, ok := r.s.memories[id]
	if !ok {
		return nil, notFound("memory")
	}
	return cloneMemory(m), nil
}

func (r memories) ListByCouple(_ context.Context, coupleID string, limit int) ([]*models.Memory, error) {
	r.s.mu.RLock()
	var out []*models.Memory
	for _, m := range r.s.memories {
		if m.CoupleID == coupleID {
			out = append(out, cloneMemory(m))
		}
	}
	r.s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date > out[j].Date
		}
		return newerFirst(out[i].CreatedAt, out[j].CreatedAt, out[i].ID, out[j].ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memories) DeleteByCouple(_ context.Context, coupleID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, m := range r.s.memories {
		if m.CoupleID == coupleID {
			delete(r.s.memories, id)
			n++
		}
	}
	return n, nil
}

// --- presets ---

type presets struct{ s *Store }

func (r presets) Upsert(_ context.Context, p *models.PresetPick) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.presets[p.ID] = *p
	return nil
}

func (r presets) GetByID(_ context.Context, id string) (*models.PresetPick, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.presets[id]
	if !ok {
		return nil, notFound("preset")
	}
	return &p, nil
}

func (r presets) List(_ context.Context) ([]*models.PresetPick, error) {
	r.s.mu.RLock()
	out := make([]*models.PresetPick, 0, len(r.s.presets))
	for _, p := range r.s.presets {
		p := p
		out = append(out, &p)
	}
	r.s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// --- device tokens ---

type devices struct{ s *Store }

func (r devices) Upsert(_ context.Context, userID, address string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.devices[userID] = models.DeviceToken{UserID: userID, Address: address, UpdatedAt: time.Now().UTC()}
	return nil
}

func (r devices) Get(_ context.Context, userID string) (*models.DeviceToken, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	t, ok := r.s.devices[userID]
	if !ok {
		return nil, notFound("device token")
	}
	return &t, nil
}
