package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nekit-S/drowsiness-detection/internal/model"
)

type repoSet struct {
	drivers  DriverRepository
	sessions SessionRepository
	events   EventRepository
}

func float64Ptr(v float64) *float64 { return &v }

func runRepositoryContract(t *testing.T, newRepos func(t *testing.T) repoSet) {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	t.Run("driver upsert and lookup", func(t *testing.T) {
		repos := newRepos(t)

		created, err := repos.drivers.Upsert(ctx, model.UpsertDriverParams{ID: "123456", Name: "Ivan"})
		require.NoError(t, err)
		assert.Equal(t, "Ivan", created.Name)

		found, err := repos.drivers.FindByID(ctx, "123456")
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, "Ivan", found.Name)

		exists, err := repos.drivers.Exists(ctx, "123456")
		require.NoError(t, err)
		assert.True(t, exists)

		missing, err := repos.drivers.FindByID(ctx, "999999")
		require.NoError(t, err)
		assert.Nil(t, missing)

		exists, err = repos.drivers.Exists(ctx, "999999")
		require.NoError(t, err)
		assert.False(t, exists)

		_, err = repos.drivers.Upsert(ctx, model.UpsertDriverParams{ID: "000001", Name: "Olga"})
		require.NoError(t, err)
		all, err := repos.drivers.FindAll(ctx)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "000001", all[0].ID)
	})

	t.Run("session end is conditional", func(t *testing.T) {
		repos := newRepos(t)
		_, err := repos.drivers.Upsert(ctx, model.UpsertDriverParams{ID: "123456", Name: "Ivan"})
		require.NoError(t, err)

		session, err := repos.sessions.Create(ctx, model.CreateSessionParams{DriverID: "123456", StartTime: base})
		require.NoError(t, err)
		assert.True(t, session.Active)
		assert.Nil(t, session.EndTime)

		active, err := repos.sessions.FindActiveByDriver(ctx, "123456")
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, session.ID, active[0].ID)

		ended, err := repos.sessions.End(ctx, model.EndSessionParams{
			ID: session.ID, EndTime: base.Add(time.Minute), DurationSeconds: 60, Reason: model.EndReasonDriverEnded,
		})
		require.NoError(t, err)
		require.NotNil(t, ended)
		assert.False(t, ended.Active)
		require.NotNil(t, ended.TotalDuration)
		assert.Equal(t, int64(60), *ended.TotalDuration)
		require.NotNil(t, ended.EndReason)
		assert.Equal(t, model.EndReasonDriverEnded, *ended.EndReason)

		again, err := repos.sessions.End(ctx, model.EndSessionParams{
			ID: session.ID, EndTime: base.Add(time.Hour), DurationSeconds: 3600, Reason: model.EndReasonStale,
		})
		require.NoError(t, err)
		assert.Nil(t, again)

		stored, err := repos.sessions.FindByID(ctx, session.ID)
		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.Equal(t, int64(60), *stored.TotalDuration)

		active, err = repos.sessions.FindActiveByDriver(ctx, "123456")
		require.NoError(t, err)
		assert.Empty(t, active)
	})

	t.Run("session queries", func(t *testing.T) {
		repos := newRepos(t)
		_, err := repos.drivers.Upsert(ctx, model.UpsertDriverParams{ID: "123456", Name: "Ivan"})
		require.NoError(t, err)
		_, err = repos.drivers.Upsert(ctx, model.UpsertDriverParams{ID: "654321", Name: "Anna"})
		require.NoError(t, err)

		old, err := repos.sessions.Create(ctx, model.CreateSessionParams{DriverID: "123456", StartTime: base.Add(-13 * time.Hour)})
		require.NoError(t, err)
		fresh, err := repos.sessions.Create(ctx, model.CreateSessionParams{DriverID: "654321", StartTime: base})
		require.NoError(t, err)

		stale, err := repos.sessions.FindActiveStartedBefore(ctx, base.Add(-12*time.Hour))
		require.NoError(t, err)
		require.Len(t, stale, 1)
		assert.Equal(t, old.ID, stale[0].ID)

		allActive, err := repos.sessions.FindAllActive(ctx)
		require.NoError(t, err)
		require.Len(t, allActive, 2)
		assert.Equal(t, fresh.ID, allActive[0].ID)

		byDriver, err := repos.sessions.FindByDriver(ctx, "123456")
		require.NoError(t, err)
		require.Len(t, byDriver, 1)

		missing, err := repos.sessions.FindByID(ctx, fresh.ID+1000)
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("event queries and retention", func(t *testing.T) {
		repos := newRepos(t)
		_, err := repos.drivers.Upsert(ctx, model.UpsertDriverParams{ID: "123456", Name: "Ivan"})
		require.NoError(t, err)
		session, err := repos.sessions.Create(ctx, model.CreateSessionParams{DriverID: "123456", StartTime: base.Add(-40 * 24 * time.Hour)})
		require.NoError(t, err)

		create := func(start time.Time, eventType model.DriverState) *model.Event {
			e, err := repos.events.Create(ctx, model.CreateEventParams{
				SessionID: session.ID,
				DriverID:  "123456",
				StartTime: start,
				Duration:  2.5,
				EventType: eventType,
				Metadata:  `{"blinkRate":3}`,
				EarValue:  float64Ptr(0.21),
			})
			require.NoError(t, err)
			return e
		}

		ancient := create(base.Add(-31*24*time.Hour), model.DriverStateDrowsy)
		create(base.Add(-10*time.Minute), model.DriverStateDistracted)
		newest := create(base.Add(-time.Minute), model.DriverStateDrowsy)

		assert.Equal(t, `{"blinkRate":3}`, newest.Metadata)
		require.NotNil(t, newest.EarValue)
		assert.InDelta(t, 0.21, *newest.EarValue, 1e-9)

		recent, err := repos.events.FindByDriver(ctx, "123456", 2)
		require.NoError(t, err)
		require.Len(t, recent, 2)
		assert.Equal(t, newest.ID, recent[0].ID)

		all, err := repos.events.FindByDriver(ctx, "123456", 0)
		require.NoError(t, err)
		assert.Len(t, all, 3)

		window, err := repos.events.FindByDriverSince(ctx, "123456", base.Add(-30*time.Minute))
		require.NoError(t, err)
		assert.Len(t, window, 2)

		bySession, err := repos.events.FindBySession(ctx, session.ID)
		require.NoError(t, err)
		require.Len(t, bySession, 3)
		assert.Equal(t, ancient.ID, bySession[0].ID)

		drowsy, err := repos.events.FindBySessionAndType(ctx, session.ID, model.DriverStateDrowsy)
		require.NoError(t, err)
		assert.Len(t, drowsy, 2)

		count, err := repos.events.CountBySessionAndType(ctx, session.ID, model.DriverStateDistracted)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)

		threshold := base.Add(-30 * 24 * time.Hour)
		expired, err := repos.events.FindBefore(ctx, threshold, 10)
		require.NoError(t, err)
		require.Len(t, expired, 1)
		assert.Equal(t, ancient.ID, expired[0].ID)

		count, err = repos.events.CountBefore(ctx, threshold)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)

		deleted, err := repos.events.DeleteBefore(ctx, threshold)
		require.NoError(t, err)
		assert.Equal(t, int64(1), deleted)

		deleted, err = repos.events.DeleteBefore(ctx, threshold)
		require.NoError(t, err)
		assert.Equal(t, int64(0), deleted)
	})
}
