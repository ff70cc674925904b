package rabbitmq

import (
	"context"
	"github.com/basit-dev-64/notification-system-backend/internal/config"
	"github.com/basit-dev-64/notification-system-backend/internal/storage/storagetest"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"os"
	"testing"
	"time"
)

func TestJobSignal_DelayedWakeup(t *testing.T) {
	dsn := os.Getenv("TEST_RABBITMQ_DSN")
	if dsn == "" || testing.Short() {
		t.Skip("TEST_RABBITMQ_DSN not set")
	}

	conn, err := NewConnection(&config.Config{RabbitMQ: config.RabbitMQConfig{DSN: dsn}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	logger := zerolog.Nop()
	signal, err := NewJobSignal(conn, &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = signal.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wake, err := signal.Wakeups(ctx)
	require.NoError(t, err)

	// Drain wake-ups left over from earlier runs.
	drain := time.After(200 * time.Millisecond)
loop:
	for {
		select {
		case <-wake:
		case <-drain:
			break loop
		}
	}

	job := storagetest.NewJob(300 * time.Millisecond)
	require.NoError(t, signal.Notify(ctx, job))

	select {
	case <-wake:
		require.False(t, time.Now().Before(job.DueAt.Add(-50*time.Millisecond)), "wake-up arrived before the due time")
	case <-time.After(10 * time.Second):
		t.Fatal("no wake-up received")
	}

	cancel()
	require.Eventually(t, func() bool {
		_, open := <-wake
		return !open
	}, 5*time.Second, 10*time.Millisecond)
}
