package cmd

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"strings"

	"marshmallow-backend/internal/models"
	"marshmallow-backend/internal/repository"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

//go:embed presets.yaml
var defaultPresets []byte

var (
	presetsFile string
	coupleID    string
)

var seedPresetsCmd = &cobra.Command{
	Use:   "seed-presets",
	Short: "Insert or refresh the preset message catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		data := defaultPresets
		if presetsFile != "" {
			raw, err := os.ReadFile(presetsFile)
			if err != nil {
				return fmt.Errorf("failed to read presets file: %w", err)
			}
			data = raw
		}
		presets, err := parsePresets(data)
		if err != nil {
			return err
		}

		return withStore(cmd.Context(), func(ctx context.Context, store repository.Store) error {
			for _, p := range presets {
				if err := store.Presets().Upsert(ctx, p); err != nil {
					return fmt.Errorf("failed to upsert preset %s: %w", p.ID, err)
				}
			}
			log.Info().Int("count", len(presets)).Msg("Presets seeded")
			return nil
		})
	},
}

var cleanupCoupleCmd = &cobra.Command{
	Use:   "cleanup-couple",
	Short: "Delete every message, check-in and memory of a couple",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(ctx context.Context, store repository.Store) error {
			if _, err := store.Couples().GetByID(ctx, coupleID); err != nil {
				return fmt.Errorf("failed to load couple: %w", err)
			}

			messages, err := store.Messages().DeleteByCouple(ctx, coupleID)
			if err != nil {
				return fmt.Errorf("failed to delete messages: %w", err)
			}
			checkIns, err := store.CheckIns().DeleteByCouple(ctx, coupleID)
			if err != nil {
				return fmt.Errorf("failed to delete check-ins: %w", err)
			}
			memories, err := store.Memories().DeleteByCouple(ctx, coupleID)
			if err != nil {
				return fmt.Errorf("failed to delete memories: %w", err)
			}

			log.Info().
				Str("couple_id", coupleID).
				Int64("messages", messages).
				Int64("checkins", checkIns).
				Int64("memories", memories).
				Msg("Couple history deleted")
			return nil
		})
	},
}

func init() {
	seedPresetsCmd.Flags().StringVarP(&presetsFile, "file", "f", "", "YAML presets file (defaults to the built-in catalog)")

	cleanupCoupleCmd.Flags().StringVar(&coupleID, "couple-id", "", "couple to clean up")
	_ = cleanupCoupleCmd.MarkFlagRequired("couple-id")
}

func withStore(ctx context.Context, fn func(context.Context, repository.Store) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	store, closeStore, err := openStore(ctx, loaded.Database)
	if err != nil {
		return err
	}
	defer closeStore()
	return fn(ctx, store)
}

// parsePresets decodes a YAML list of presets and rejects incomplete or duplicate entries
func parsePresets(data []byte) ([]*models.PresetPick, error) {
	var presets []*models.PresetPick
	if err := yaml.Unmarshal(data, &presets); err != nil {
		return nil, fmt.Errorf("failed to parse presets: %w", err)
	}

	seen := make(map[string]bool, len(presets))
	for i, p := range presets {
		if p == nil || strings.TrimSpace(p.ID) == "" || strings.TrimSpace(p.Text) == "" {
			return nil, fmt.Errorf("preset #%d: id and text are required", i+1)
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("preset %s: duplicate id", p.ID)
		}
		seen[p.ID] = true
		if p.Order == 0 {
			p.Order = i + 1
		}
	}
	return presets, nil
}
