package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/loykin/chickenshell/internal/history"
)

func TestPostgresSink_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	postgresContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Skipf("PostgreSQL container unavailable: %v", err)
	}
	defer func() {
		if err := postgresContainer.Terminate(ctx); err != nil {
			t.Errorf("Failed to terminate PostgreSQL container: %v", err)
		}
	}()

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	sink, err := New(connStr)
	require.NoError(t, err)
	defer func() { assert.NoError(t, sink.Close()) }()

	rec := history.Record{RunID: "run-pg", Name: "chicken-core", Path: "/opt/chicken-core", PID: 4242, StartedAt: time.Now().UTC()}
	require.NoError(t, sink.Send(ctx, history.Event{Type: history.EventStart, OccurredAt: time.Now(), Record: rec}))
	rec.EndedAt = time.Now().UTC()
	require.NoError(t, sink.Send(ctx, history.Event{Type: history.EventShutdown, OccurredAt: time.Now(), Record: rec}))

	events, err := sink.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, history.EventShutdown, events[0].Type)
	assert.Equal(t, "run-pg", events[0].Record.RunID)
	assert.Equal(t, 4242, events[1].Record.PID)
}

func TestPostgresSink_EmptyDSN(t *testing.T) {
	_, err := New("")
	require.Error(t, err)
}
