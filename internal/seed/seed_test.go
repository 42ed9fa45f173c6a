package seed

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labstock/internal/core"
	"labstock/pkg/domain"
)

const inventory = `
storages:
  - name: Rack A
    capacity: 10
    reagents:
      - name: Ethanol
        form: Liquid
        hazard_class: flammable
        received_at: 2024-01-05
        expires_at: 2026-01-05
        stock: 12
      - name: Sodium chloride
        form: solid
        stock: 500
  - name: Cold room
users:
  - username: ana
    first_name: Ana
    last_name: Lima
    password: secret
  - username: retired
    password: old
    active: false
materials:
  - PCR buffer
  - pcr  BUFFER
  - Nitrile gloves
`

func TestApplySeed(t *testing.T) {
	ctx := context.Background()
	svc := core.NewInMemoryService(nil)
	f, err := Parse(strings.NewReader(inventory))
	require.NoError(t, err)

	sum, err := Apply(ctx, svc, f)
	require.NoError(t, err)
	assert.Equal(t, Summary{Storages: 2, Reagents: 2, Users: 2, Materials: 2, Skipped: 1}, sum)

	reagents, err := svc.ListReagents(ctx)
	require.NoError(t, err)
	require.Len(t, reagents, 2)
	assert.Equal(t, "Ethanol", reagents[0].Name)
	assert.Equal(t, domain.FormLiquid, reagents[0].Form)
	assert.Equal(t, 12, reagents[0].Stock)
	require.NotNil(t, reagents[0].ExpiresAt)
	assert.Equal(t, "2026-01-05", reagents[0].ExpiresAt.Format(domain.DateLayout))

	_, err = svc.Authenticate(ctx, "ana", "secret")
	require.NoError(t, err)
	_, err = svc.Authenticate(ctx, "retired", "old")
	assert.True(t, errors.Is(err, domain.ErrInactiveUser))

	again, err := Apply(ctx, svc, f)
	require.NoError(t, err)
	assert.Equal(t, Summary{Skipped: 9}, again, "second run only skips")
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse(strings.NewReader("racks:\n  - name: A\n"))
	require.Error(t, err)
}

func TestParseEmpty(t *testing.T) {
	f, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, f.Storages)
}

func TestApplyBadReagentDate(t *testing.T) {
	f := File{Storages: []Storage{{Name: "R", Reagents: []Reagent{{Name: "X", ExpiresAt: "31/01/2030"}}}}}
	_, err := Apply(context.Background(), core.NewInMemoryService(nil), f)
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(inventory), 0o600))
	f, err := LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, f.Users, 2)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
