package repository

import (
	"context"

	"marshmallow-backend/internal/models"
)

// Store groups the collections the services persist to.
// PostgresStore backs production; memstore.Store backs local runs and tests.
type Store interface {
	Users() Users
	Couples() Couples
	Messages() Messages
	CheckIns() CheckIns
	Memories() Memories
	Presets() Presets
	DeviceTokens() DeviceTokens
}

type Users interface {
	// Upsert creates the user on first sign-in, or refreshes the profile fields
	// supplied by the identity provider and returns the stored record.
	Upsert(ctx context.Context, user *models.User) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByCode(ctx context.Context, code string) (*models.User, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	// SetCoupleID assigns the couple once. It fails with models.ErrAlreadyPaired
	// when the user already has a couple.
	SetCoupleID(ctx context.Context, userID, coupleID string) error
	UpdateSettings(ctx context.Context, userID string, settings models.UserSettings) error
}

type Couples interface {
	// Create fails with models.ErrInvalidCoupleSize unless exactly two distinct members are given.
	Create(ctx context.Context, couple *models.Couple) error
	// CreateForCreator inserts the couple and sets creatorID's couple id as one
	// atomic step. It fails with models.ErrAlreadyPaired when either member
	// already has a couple or is listed by one, and with models.ErrNotFound
	// when a member has never signed in.
	CreateForCreator(ctx context.Context, couple *models.Couple, creatorID string) error
	GetByID(ctx context.Context, id string) (*models.Couple, error)
	FindByMember(ctx context.Context, userID string) (*models.Couple, error)
	// AddMember fails with models.ErrCoupleFull once two members are present.
	AddMember(ctx context.Context, coupleID, userID string) error
}

// Create on Messages, CheckIns and Memories assigns CreatedAt and writes it
// back to the record. The assigned time is strictly after every earlier
// record of the same couple; PostgresStore takes it from the database clock,
// memstore from the proposed CreatedAt.
type Messages interface {
	Create(ctx context.Context, msg *models.Message) error
	GetByID(ctx context.Context, id string) (*models.Message, error)
	// ListByCouple returns messages newest first. limit <= 0 means no limit.
	ListByCouple(ctx context.Context, coupleID string, limit int) ([]*models.Message, error)
	// MarkRead reports whether the flag changed.
	MarkRead(ctx context.Context, id string) (bool, error)
	DeleteByCouple(ctx context.Context, coupleID string) (int64, error)
}

type CheckIns interface {
	// Create fails with models.ErrCheckInExists when the author already checked in on that date.
	Create(ctx context.Context, checkIn *models.CheckIn) error
	GetByID(ctx context.Context, id string) (*models.CheckIn, error)
	// ListByCouple returns check-ins with from <= date <= to, newest date first.
	// Empty bounds are open.
	ListByCouple(ctx context.Context, coupleID, from, to string) ([]*models.CheckIn, error)
	DeleteByCouple(ctx context.Context, coupleID string) (int64, error)
}

type Memories interface {
	Create(ctx context.Context, memory *models.Memory) error
	GetByID(ctx context.Context, id string) (*models.Memory, error)
	// ListByCouple returns memories by associated date, newest first.
	ListByCouple(ctx context.Context, coupleID string, limit int) ([]*models.Memory, error)
	DeleteByCouple(ctx context.Context, coupleID string) (int64, error)
}

type Presets interface {
	Upsert(ctx context.Context, preset *models.PresetPick) error
	GetByID(ctx context.Context, id string) (*models.PresetPick, error)
	List(ctx context.Context) ([]*models.PresetPick, error)
}

type DeviceTokens interface {
	// Upsert overwrites any previous address for the user.
	Upsert(ctx context.Context, userID, address string) error
	// Get returns models.ErrNotFound when the user has no address.
	Get(ctx context.Context, userID string) (*models.DeviceToken, error)
}
