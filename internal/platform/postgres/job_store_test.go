package postgres

import (
	"context"
	"database/sql"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillhq/docpipe/internal/store"
	"github.com/quillhq/docpipe/internal/testutils"
)

// isIntegrationTestEnvironment returns true if the environment is configured
// for running integration tests with a database connection
func isIntegrationTestEnvironment() bool {
	return os.Getenv("DATABASE_URL") != ""
}

// getTestDatabaseURL returns the database URL for integration tests
func getTestDatabaseURL(t *testing.T) string {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Fatal("DATABASE_URL environment variable is required for this test")
	}
	return dbURL
}

// openTestDatabase opens a real connection for integration tests. The
// migrations are expected to have been applied to the target database.
// Concurrency tests need a real *sql.DB rather than a wrapping transaction:
// a single transaction would serialize the competing statements and hide
// exactly the races these tests exercise.
func openTestDatabase(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("pgx", getTestDatabaseURL(t))
	require.NoError(t, err, "Failed to open database connection")
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Error closing database connection: %v", err)
		}
	})

	require.NoError(t, db.PingContext(context.Background()), "Failed to ping database")
	return db
}

// testLane returns a lane name unique to this test so concurrently running
// tests never see each other's jobs. Rows are removed on cleanup; the jobs
// table has no foreign keys, so a plain delete suffices.
func testLane(t *testing.T, db *sql.DB) string {
	t.Helper()

	lane := "test-lane-" + uuid.NewString()
	t.Cleanup(func() {
		if _, err := db.ExecContext(context.Background(), "DELETE FROM jobs WHERE lane = $1", lane); err != nil {
			t.Logf("Error cleaning up jobs for lane %s: %v", lane, err)
		}
	})
	return lane
}

func TestPostgresJobStore_Integration(t *testing.T) {
	if !isIntegrationTestEnvironment() {
		t.Skip("Skipping integration test - DATABASE_URL environment variable required")
	}

	db := openTestDatabase(t)
	ctx := context.Background()
	jobStore := NewJobStore(db, testutils.Logger())

	t.Run("EnqueueAndLease", func(t *testing.T) {
		lane := testLane(t, db)

		id, err := jobStore.Enqueue(ctx, lane, []byte(`{"kind":"noop"}`), 3)
		require.NoError(t, err, "Failed to enqueue job")

		jobs, err := jobStore.Lease(ctx, lane, 10, time.Minute)
		require.NoError(t, err, "Failed to lease jobs")
		require.Len(t, jobs, 1)
		assert.Equal(t, id, jobs[0].ID)
		assert.Equal(t, store.JobStatusLeased, jobs[0].Status)
		require.NotNil(t, jobs[0].LeasedUntil, "Leased job should carry a lease deadline")

		// A live lease keeps the job out of later claims.
		again, err := jobStore.Lease(ctx, lane, 10, time.Minute)
		require.NoError(t, err)
		assert.Empty(t, again, "Job with a live lease must not be claimed again")
	})

	t.Run("LeaseContentionBetweenClients", func(t *testing.T) {
		lane := testLane(t, db)

		const jobCount = 6
		for i := 0; i < jobCount; i++ {
			_, err := jobStore.Enqueue(ctx, lane, []byte(`{"kind":"noop"}`), 3)
			require.NoError(t, err, "Failed to enqueue job")
		}

		// Two stores over the same database stand in for two worker
		// processes racing on one lane.
		clients := []*JobStore{
			NewJobStore(db, testutils.Logger()),
			NewJobStore(db, testutils.Logger()),
		}

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			claimed = make(map[uuid.UUID]int)
		)
		for _, client := range clients {
			wg.Add(1)
			go func(c *JobStore) {
				defer wg.Done()

				jobs, err := c.Lease(ctx, lane, jobCount, time.Minute)
				assert.NoError(t, err, "Failed to lease jobs")

				mu.Lock()
				defer mu.Unlock()
				for _, job := range jobs {
					claimed[job.ID]++
				}
			}(client)
		}
		wg.Wait()

		assert.Len(t, claimed, jobCount, "Every job should be claimed by exactly one client")
		for id, count := range claimed {
			assert.Equal(t, 1, count, "Job %s was claimed by more than one client", id)
		}
	})

	t.Run("ExpiredLeaseIsRedelivered", func(t *testing.T) {
		lane := testLane(t, db)

		id, err := jobStore.Enqueue(ctx, lane, []byte(`{"kind":"noop"}`), 3)
		require.NoError(t, err, "Failed to enqueue job")

		// A negative lease duration produces a lease that is already
		// expired, standing in for a worker that died mid-delivery.
		jobs, err := jobStore.Lease(ctx, lane, 1, -time.Second)
		require.NoError(t, err, "Failed to lease job")
		require.Len(t, jobs, 1)

		jobs, err = jobStore.Lease(ctx, lane, 1, time.Minute)
		require.NoError(t, err, "Failed to lease job a second time")
		require.Len(t, jobs, 1, "Expired lease should be claimable again")
		assert.Equal(t, id, jobs[0].ID)
	})

	t.Run("FailSchedulesRetryThenKills", func(t *testing.T) {
		lane := testLane(t, db)

		id, err := jobStore.Enqueue(ctx, lane, []byte(`{"kind":"noop"}`), 2)
		require.NoError(t, err, "Failed to enqueue job")

		jobs, err := jobStore.Lease(ctx, lane, 1, time.Minute)
		require.NoError(t, err)
		require.Len(t, jobs, 1)

		retryScheduled, err := jobStore.Fail(ctx, id, 0)
		require.NoError(t, err, "Failed to record first failure")
		assert.True(t, retryScheduled, "First failure should schedule a retry")

		jobs, err = jobStore.Lease(ctx, lane, 1, time.Minute)
		require.NoError(t, err)
		require.Len(t, jobs, 1, "Rescheduled job should be deliverable again")
		assert.Equal(t, 1, jobs[0].Attempts)

		retryScheduled, err = jobStore.Fail(ctx, id, 0)
		require.NoError(t, err, "Failed to record second failure")
		assert.False(t, retryScheduled, "Exhausted job must not be rescheduled")

		var status string
		err = db.QueryRowContext(ctx, "SELECT status FROM jobs WHERE id = $1", id).Scan(&status)
		require.NoError(t, err, "Failed to query job status")
		assert.Equal(t, string(store.JobStatusDead), status)

		jobs, err = jobStore.Lease(ctx, lane, 1, time.Minute)
		require.NoError(t, err)
		assert.Empty(t, jobs, "Dead jobs must never be delivered")
	})

	t.Run("CompleteAndDrop", func(t *testing.T) {
		lane := testLane(t, db)

		doneID, err := jobStore.Enqueue(ctx, lane, []byte(`{"kind":"noop"}`), 3)
		require.NoError(t, err)
		deadID, err := jobStore.Enqueue(ctx, lane, []byte(`{"kind":"noop"}`), 3)
		require.NoError(t, err)

		_, err = jobStore.Lease(ctx, lane, 2, time.Minute)
		require.NoError(t, err)

		require.NoError(t, jobStore.Complete(ctx, doneID), "Failed to complete job")
		require.NoError(t, jobStore.Drop(ctx, deadID), "Failed to drop job")

		var status string
		err = db.QueryRowContext(ctx, "SELECT status FROM jobs WHERE id = $1", doneID).Scan(&status)
		require.NoError(t, err)
		assert.Equal(t, string(store.JobStatusDone), status)

		err = db.QueryRowContext(ctx, "SELECT status FROM jobs WHERE id = $1", deadID).Scan(&status)
		require.NoError(t, err)
		assert.Equal(t, string(store.JobStatusDead), status)

		assert.ErrorIs(t, jobStore.Complete(ctx, uuid.New()), store.ErrJobNotFound)
		assert.ErrorIs(t, jobStore.Drop(ctx, uuid.New()), store.ErrJobNotFound)
	})
}
