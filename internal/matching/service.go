// Package matching remembers which unit pays under a given bank description,
// so unmatched statement lines can carry a suggested unit.
package matching

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/luisfernandobanegasro/parcial/internal/billing"
)

// minPatternLen keeps short fragments like "DE" from matching every line.
const minPatternLen = 4

type Mapping struct {
	ID         uuid.UUID
	RawPattern string
	UnitID     uuid.UUID
	CreatedAt  time.Time
}

type Repository interface {
	// FindMatch returns the unit of the longest pattern contained in
	// rawDescription, or nil when none applies.
	FindMatch(ctx context.Context, rawDescription string) (*uuid.UUID, error)
	CreateMapping(ctx context.Context, m *Mapping) error
}

type Service struct {
	repo  Repository
	units billing.UnitDirectory
}

func NewService(repo Repository, units billing.UnitDirectory) *Service {
	return &Service{repo: repo, units: units}
}

// Suggest returns the unit most likely behind a raw bank description.
// A nil unit with a nil error means no mapping applies.
func (s *Service) Suggest(ctx context.Context, rawDescription string) (*uuid.UUID, error) {
	raw := strings.TrimSpace(rawDescription)
	if raw == "" {
		return nil, nil
	}

	return s.repo.FindMatch(ctx, raw)
}

// Learn remembers that descriptions containing rawPattern belong to unitID.
func (s *Service) Learn(ctx context.Context, rawPattern string, unitID uuid.UUID) (*Mapping, error) {
	pattern := strings.ToUpper(strings.TrimSpace(rawPattern))

	if len(pattern) < minPatternLen {
		return nil, billing.Invalid("raw_pattern", "must have at least 4 characters")
	}

	if unitID == uuid.Nil {
		return nil, billing.Invalid("unit_id", "is required")
	}

	if _, err := s.units.GetUnit(ctx, unitID); err != nil {
		if errors.Is(err, billing.ErrNotFound) {
			return nil, billing.Invalid("unit_id", "unit does not exist")
		}

		return nil, fmt.Errorf("get unit: %w", err)
	}

	m := &Mapping{RawPattern: pattern, UnitID: unitID}
	if err := s.repo.CreateMapping(ctx, m); err != nil {
		return nil, err
	}

	return m, nil
}
