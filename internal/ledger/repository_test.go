package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltbridge/battery-relay/internal/models"
)

func newRepo(t *testing.T) CommandRepository {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "ledger.db")
	repo, err := NewCommandRepository(NewSQLiteConnector(dsn), zerolog.Nop())
	require.NoError(t, err)
	return repo
}

func testCommand(id, deviceID string, createdAt time.Time) models.Command {
	return models.Command{
		ID:        id,
		DeviceID:  deviceID,
		Status:    models.CommandStatusOK,
		StartAt:   createdAt,
		EndsAt:    createdAt.Add(time.Hour),
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
		BatteryCommands: []models.BatteryCommand{
			{Mode: models.ModeDischarge, DeviceStatus: models.DeviceStatusPending},
		},
	}
}

func noopNotify(context.Context, models.Command) error { return nil }

func TestRepository_UnackedOrdering(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)
	t3 := t2.Add(time.Hour)

	// Insert out of order; Unacked must come back oldest first.
	require.NoError(t, repo.Upsert(ctx, testCommand("c3", "d1", t3)))
	require.NoError(t, repo.Upsert(ctx, testCommand("c1", "d1", t1)))
	require.NoError(t, repo.Upsert(ctx, testCommand("c2", "d1", t2)))
	require.NoError(t, repo.Upsert(ctx, testCommand("other", "d2", t1)))

	unacked, err := repo.Unacked(ctx, "d1")
	require.NoError(t, err)

	require.Len(t, unacked, 3)
	assert.Equal(t, "c1", unacked[0].ID)
	assert.Equal(t, "c2", unacked[1].ID)
	assert.Equal(t, "c3", unacked[2].ID)
	assert.Equal(t, models.ModeDischarge, unacked[0].BatteryCommands[0].Mode)
}

func TestRepository_AckUpTo_ExactSetAndIdempotent(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	t3 := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Upsert(ctx, testCommand("c1", "d1", t1)))
	require.NoError(t, repo.Upsert(ctx, testCommand("c2", "d1", t2)))
	require.NoError(t, repo.Upsert(ctx, testCommand("c3", "d1", t3)))

	acked, err := repo.AckUpTo(ctx, "d1", t2, noopNotify)
	require.NoError(t, err)
	assert.Equal(t, 2, acked)

	unacked, err := repo.Unacked(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, unacked, 1)
	assert.Equal(t, "c3", unacked[0].ID)

	// Running it again changes nothing and re-notifies nothing.
	notifies := 0
	acked, err = repo.AckUpTo(ctx, "d1", t2, func(context.Context, models.Command) error {
		notifies++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, acked)
	assert.Equal(t, 0, notifies)
}

func TestRepository_AckUpTo_NotifyFailureLeavesUnacked(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Upsert(ctx, testCommand("c1", "d1", t1)))
	require.NoError(t, repo.Upsert(ctx, testCommand("c2", "d1", t2)))

	// c1's notification fails; c2 must still ack independently.
	acked, err := repo.AckUpTo(ctx, "d1", t2, func(_ context.Context, cmd models.Command) error {
		if cmd.ID == "c1" {
			return errors.New("partner unavailable")
		}
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, 1, acked)

	unacked, err := repo.Unacked(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, unacked, 1)
	assert.Equal(t, "c1", unacked[0].ID)

	// The next cycle retries c1 and succeeds.
	acked, err = repo.AckUpTo(ctx, "d1", t2, noopNotify)
	require.NoError(t, err)
	assert.Equal(t, 1, acked)

	unacked, err = repo.Unacked(ctx, "d1")
	require.NoError(t, err)
	assert.Empty(t, unacked)
}

func TestRepository_ReupsertResetsAck(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Upsert(ctx, testCommand("c1", "d1", t1)))

	acked, err := repo.AckUpTo(ctx, "d1", t1, noopNotify)
	require.NoError(t, err)
	require.Equal(t, 1, acked)

	unacked, err := repo.Unacked(ctx, "d1")
	require.NoError(t, err)
	require.Empty(t, unacked)

	// A re-issued command with the same id requires re-acknowledgement.
	updated := testCommand("c1", "d1", t1)
	updated.UpdatedAt = t1.Add(time.Hour)
	require.NoError(t, repo.Upsert(ctx, updated))

	unacked, err = repo.Unacked(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, unacked, 1)
	assert.Equal(t, "c1", unacked[0].ID)
	assert.Nil(t, unacked[0].DeviceAckedAt)
}

func TestRepository_SaveEnrollment(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	enrollment := models.Enrollment{
		ID:        "e1",
		SiteID:    "site-for-device::battery-001",
		ProgramID: "p1",
		Status:    "ACTIVE",
	}

	require.NoError(t, repo.SaveEnrollment(ctx, enrollment))

	enrollment.Status = "UNENROLLED"
	require.NoError(t, repo.SaveEnrollment(ctx, enrollment))
}
