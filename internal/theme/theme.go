// Package theme stores the global presentation theme chosen by an admin.
package theme

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"deepdive/api/internal/store"
)

const (
	ConfigID = "global-theme-config"
	Default  = "cosmic"
)

var ErrUnknownTheme = errors.New("unknown theme")

type Theme struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

var themes = []Theme{
	{ID: "classic", Name: "Classic", Description: "Clean, minimal styling - easy on the eyes"},
	{ID: "executive", Name: "Executive", Description: "Bold headers with backgrounds - commanding presence"},
	{ID: "presentation", Name: "Presentation", Description: "Extra large fonts - perfect for projectors"},
	{ID: "technical", Name: "Technical", Description: "Monospace focus - developer-friendly"},
	{ID: "academic", Name: "Academic", Description: "Traditional document style - scholarly appearance"},
	{ID: "cosmic", Name: "Cosmic", Description: "Space-inspired theme - clean white text on cosmic gradient"},
}

// All lists the available themes in display order.
func All() []Theme {
	out := make([]Theme, len(themes))
	copy(out, themes)
	return out
}

func Valid(id string) bool {
	for _, t := range themes {
		if t.ID == id {
			return true
		}
	}
	return false
}

type ConfigLog interface {
	AppendConfig(ctx context.Context, entry store.ConfigEntry) error
	LatestConfig(ctx context.Context, configID string) (store.ConfigEntry, error)
}

type Service struct {
	log    ConfigLog
	logger zerolog.Logger
}

func NewService(log ConfigLog, logger zerolog.Logger) *Service {
	return &Service{log: log, logger: logger}
}

// Get returns the newest theme setting, or Default when none is stored,
// the stored id is unknown, or the log cannot be read.
func (s *Service) Get(ctx context.Context) string {
	if s.log == nil {
		return Default
	}
	entry, err := s.log.LatestConfig(ctx, ConfigID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn().Err(err).Msg("theme: read failed, using default")
		}
		return Default
	}
	if !Valid(entry.Value) {
		s.logger.Warn().Str("theme", entry.Value).Msg("theme: stored id is unknown, using default")
		return Default
	}
	return entry.Value
}

func (s *Service) Set(ctx context.Context, themeID, setBy string) error {
	if !Valid(themeID) {
		return fmt.Errorf("%w: %q", ErrUnknownTheme, themeID)
	}
	if s.log == nil {
		return errors.New("theme storage is not configured")
	}
	if setBy == "" {
		setBy = "admin"
	}
	if err := s.log.AppendConfig(ctx, store.ConfigEntry{
		ConfigID:   ConfigID,
		ConfigType: store.ConfigTypeTheme,
		Value:      themeID,
		SetBy:      setBy,
	}); err != nil {
		return fmt.Errorf("set theme: %w", err)
	}
	s.logger.Info().Str("theme", themeID).Str("set_by", setBy).Msg("global theme changed")
	return nil
}
