package matching_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/luisfernandobanegasro/parcial/internal/billing"
	"github.com/luisfernandobanegasro/parcial/internal/matching"
)

type memoryMappings struct {
	mappings []*matching.Mapping
}

func (m *memoryMappings) FindMatch(_ context.Context, raw string) (*uuid.UUID, error) {
	var best *matching.Mapping

	for _, mp := range m.mappings {
		if !strings.Contains(strings.ToUpper(raw), mp.RawPattern) {
			continue
		}

		if best == nil || len(mp.RawPattern) > len(best.RawPattern) {
			best = mp
		}
	}

	if best == nil {
		return nil, nil
	}

	return &best.UnitID, nil
}

func (m *memoryMappings) CreateMapping(_ context.Context, mp *matching.Mapping) error {
	mp.ID = uuid.New()
	m.mappings = append(m.mappings, mp)

	return nil
}

func TestLearnAndSuggest(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	units := billing.NewMockUnitDirectory(ctrl)

	perez := uuid.New()
	perezJr := uuid.New()

	units.EXPECT().GetUnit(gomock.Any(), gomock.Any()).Return(&billing.Unit{}, nil).Times(2)

	svc := matching.NewService(&memoryMappings{}, units)

	m, err := svc.Learn(ctx, "  juan perez ", perez)
	require.NoError(t, err)
	assert.Equal(t, "JUAN PEREZ", m.RawPattern)

	_, err = svc.Learn(ctx, "JUAN PEREZ JR", perezJr)
	require.NoError(t, err)

	tests := []struct {
		name string
		raw  string
		want *uuid.UUID
	}{
		{name: "contained pattern", raw: "TRANSF DE juan perez VILLEGAS", want: &perez},
		{name: "longest pattern wins", raw: "TRANSF JUAN PEREZ JR", want: &perezJr},
		{name: "no mapping", raw: "DEPOSITO EN EFECTIVO", want: nil},
		{name: "blank", raw: "   ", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.Suggest(ctx, tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLearn_Validation(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	units := billing.NewMockUnitDirectory(ctrl)
	svc := matching.NewService(&memoryMappings{}, units)

	_, err := svc.Learn(ctx, "DE", uuid.New())
	assert.True(t, billing.IsValidation(err))

	_, err = svc.Learn(ctx, "JUAN PEREZ", uuid.Nil)
	assert.True(t, billing.IsValidation(err))

	missing := uuid.New()
	units.EXPECT().GetUnit(gomock.Any(), missing).Return(nil, billing.ErrNotFound)

	_, err = svc.Learn(ctx, "JUAN PEREZ", missing)
	assert.True(t, billing.IsValidation(err))

	broken := uuid.New()
	units.EXPECT().GetUnit(gomock.Any(), broken).Return(nil, errors.New("registry down"))

	_, err = svc.Learn(ctx, "JUAN PEREZ", broken)
	require.Error(t, err)
	assert.False(t, billing.IsValidation(err))
}
