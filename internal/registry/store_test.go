package registry

import (
	"testing"
	"time"
)

func TestActiveTokenFromRow(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	created := time.Date(2025, 6, 1, 11, 0, 0, 0, time.FixedZone("CET", 3600))
	started := time.Date(2025, 6, 1, 11, 5, 0, 0, time.UTC)
	creator := "devWallet"

	t.Run("complete row", func(t *testing.T) {
		at := activeTokenFromRow("mint1", 2, &created, &started, &creator, now)
		if at.TokenAddress != "mint1" || at.PhaseID != 2 {
			t.Errorf("identity fields wrong: %+v", at)
		}
		if !at.CreatedAt.Equal(created) || at.CreatedAt.Location() != time.UTC {
			t.Errorf("CreatedAt = %v, want %v in UTC", at.CreatedAt, created)
		}
		if !at.StartedAt.Equal(started) {
			t.Errorf("StartedAt = %v, want %v", at.StartedAt, started)
		}
		if at.CreatorAddress != "devWallet" {
			t.Errorf("CreatorAddress = %q", at.CreatorAddress)
		}
	})

	t.Run("missing created_at falls back to now", func(t *testing.T) {
		at := activeTokenFromRow("mint1", 1, nil, nil, nil, now)
		if !at.CreatedAt.Equal(now) {
			t.Errorf("CreatedAt = %v, want %v", at.CreatedAt, now)
		}
		if !at.StartedAt.Equal(now) {
			t.Errorf("StartedAt = %v, want %v", at.StartedAt, now)
		}
		if at.CreatorAddress != "" {
			t.Errorf("CreatorAddress = %q, want empty", at.CreatorAddress)
		}
	})

	t.Run("missing started_at falls back to created_at", func(t *testing.T) {
		at := activeTokenFromRow("mint1", 1, &created, nil, nil, now)
		if !at.StartedAt.Equal(created) {
			t.Errorf("StartedAt = %v, want %v", at.StartedAt, created)
		}
	})
}
