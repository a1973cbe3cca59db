package services

import (
	"context"
	"errors"
	"fmt"

	"marshmallow-backend/internal/models"
	"marshmallow-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// PairingService is the directory of couples: it creates and joins couples
// and answers "who is my partner". Nothing is cached; every call reads the store.
type PairingService struct {
	users   repository.Users
	couples repository.Couples
	clock   Clock
}

// NewPairingService creates a new pairing service
func NewPairingService(users repository.Users, couples repository.Couples, clock Clock) *PairingService {
	return &PairingService{
		users:   users,
		couples: couples,
		clock:   clock,
	}
}

// CreateCoupleRequest represents a request to create a couple
type CreateCoupleRequest struct {
	PartnerCode string `json:"partner_code"`
}

// CreateCouple creates a couple of the user and the owner of partnerCode.
// The creator is attached immediately; the partner joins with JoinCouple.
func (s *PairingService) CreateCouple(ctx context.Context, userID, partnerCode string) (*models.Couple, error) {
	if len(partnerCode) != codeLength {
		return nil, fmt.Errorf("%w: partner code must be %d characters", models.ErrValidation, codeLength)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.CoupleID != nil {
		return nil, models.ErrAlreadyPaired
	}

	partner, err := s.users.GetByCode(ctx, partnerCode)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("partner %w", models.ErrNotFound)
		}
		return nil, models.NewOpError(models.OpCreateCouple, err)
	}
	if partner.ID == userID {
		return nil, fmt.Errorf("%w: cannot create a couple with yourself", models.ErrValidation)
	}
	if partner.CoupleID != nil {
		return nil, fmt.Errorf("partner: %w", models.ErrAlreadyPaired)
	}

	// Members are stored in a stable order
	a, b := userID, partner.ID
	if a > b {
		a, b = b, a
	}
	couple := &models.Couple{
		ID:      uuid.New().String(),
		Members: []string{a, b},
		DisplayNames: map[string]string{
			user.ID:    user.DisplayName,
			partner.ID: partner.DisplayName,
		},
		CreatedAt: s.clock.Now(),
	}

	// The store repeats the membership checks under lock
	if err := s.couples.CreateForCreator(ctx, couple, userID); err != nil {
		switch {
		case errors.Is(err, models.ErrAlreadyPaired), errors.Is(err, models.ErrNotFound):
			return nil, err
		default:
			return nil, models.NewOpError(models.OpCreateCouple, err)
		}
	}

	log.Info().
		Str("couple_id", couple.ID).
		Str("user_id", userID).
		Str("partner_id", partner.ID).
		Msg("Couple created")

	return couple, nil
}

// JoinCouple attaches the user to a couple that already lists them.
// Joining a couple that does not list the user fails with models.ErrCoupleFull.
func (s *PairingService) JoinCouple(ctx context.Context, userID, coupleID string) (*models.Couple, error) {
	if _, err := uuid.Parse(coupleID); err != nil {
		return nil, fmt.Errorf("%w: malformed couple id", models.ErrValidation)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.CoupleID != nil && *user.CoupleID != coupleID {
		return nil, models.ErrAlreadyPaired
	}

	couple, err := s.couples.GetByID(ctx, coupleID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
		return nil, models.NewOpError(models.OpJoinCouple, err)
	}

	if !couple.HasMember(userID) {
		if err := s.couples.AddMember(ctx, coupleID, userID); err != nil {
			if errors.Is(err, models.ErrCoupleFull) {
				return nil, err
			}
			return nil, models.NewOpError(models.OpJoinCouple, err)
		}
		if couple, err = s.couples.GetByID(ctx, coupleID); err != nil {
			return nil, models.NewOpError(models.OpJoinCouple, err)
		}
	}
	if err := checkCoupleSize(couple); err != nil {
		return nil, err
	}

	if err := s.users.SetCoupleID(ctx, userID, coupleID); err != nil {
		if errors.Is(err, models.ErrAlreadyPaired) {
			return nil, err
		}
		return nil, models.NewOpError(models.OpJoinCouple, err)
	}

	log.Info().Str("couple_id", coupleID).Str("user_id", userID).Msg("Couple joined")
	return couple, nil
}

// JoinPending joins the couple that lists the user, if any.
// It returns models.ErrNotPaired when no couple is waiting for the user.
func (s *PairingService) JoinPending(ctx context.Context, userID string) (*models.Couple, error) {
	couple, err := s.couples.FindByMember(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotPaired
		}
		return nil, err
	}
	return s.JoinCouple(ctx, userID, couple.ID)
}

// CoupleForUser returns the user's couple after checking its membership
func (s *PairingService) CoupleForUser(ctx context.Context, userID string) (*models.Couple, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.CoupleID == nil {
		return nil, models.ErrNotPaired
	}

	couple, err := s.couples.GetByID(ctx, *user.CoupleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load couple %s: %w", *user.CoupleID, err)
	}
	if err := checkCoupleSize(couple); err != nil {
		return nil, err
	}
	if !couple.HasMember(userID) {
		log.Error().Str("couple_id", couple.ID).Str("user_id", userID).Msg("User is not listed in their own couple")
		return nil, fmt.Errorf("%w: user %s is not listed in couple %s", models.ErrInvalidCoupleSize, userID, couple.ID)
	}
	return couple, nil
}

// ResolvePartner returns the identity of the user's partner
func (s *PairingService) ResolvePartner(ctx context.Context, userID string) (string, error) {
	couple, err := s.CoupleForUser(ctx, userID)
	if err != nil {
		return "", err
	}
	return couple.Partner(userID)
}

func checkCoupleSize(couple *models.Couple) error {
	if len(couple.Members) == 2 && couple.Members[0] != couple.Members[1] {
		return nil
	}
	log.Error().
		Str("couple_id", couple.ID).
		Int("members", len(couple.Members)).
		Msg("Couple membership is corrupt")
	return fmt.Errorf("%w: couple %s has %d members", models.ErrInvalidCoupleSize, couple.ID, len(couple.Members))
}
