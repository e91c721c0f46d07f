package monitoring

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/isdelr/telemed-portal/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedEvents struct {
	mu     sync.Mutex
	events []models.Event
}

func (r *recordedEvents) CreateEvent(_ context.Context, eventType, level, message string, subjectID *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, models.Event{Type: eventType, Level: level, Message: message})
	return nil
}

func (r *recordedEvents) GetRecentEvents(context.Context, int) ([]models.Event, error) {
	return nil, nil
}

func TestSchedulerRecordsFailedJobs(t *testing.T) {
	events := &recordedEvents{}
	s := NewScheduler(events)

	s.RunNow("mail-token-warmup", func(context.Context) error { return errors.New("token endpoint returned 500") })
	s.RunNow("host-stats", func(context.Context) error { return nil })

	require.Len(t, events.events, 1)
	assert.Equal(t, "job.fail", events.events[0].Type)
	assert.Contains(t, events.events[0].Message, "mail-token-warmup")
}

func TestSchedulerRejectsInvalidSpec(t *testing.T) {
	s := NewScheduler(nil)
	require.Error(t, s.Add("broken", "every now and then", func(context.Context) error { return nil }))
	require.NoError(t, s.Add("warmup", "@every 45m", func(context.Context) error { return nil }))
}

func TestSchedulerRunsScheduledJobs(t *testing.T) {
	s := NewScheduler(nil)
	ran := make(chan struct{}, 1)
	require.NoError(t, s.Add("tick", "@every 1s", func(context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	}))
	s.Start()

	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not run")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}

func TestDirectorySize(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.pdf"), make([]byte, 100), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nested", "b.png"), make([]byte, 50), 0o644))

	assert.EqualValues(t, 150, directorySize(dir))
	assert.Zero(t, directorySize(filepath.Join(dir, "missing")))
	assert.Zero(t, directorySize(""))
}

func TestStatUpdaterLatestSamplesOnce(t *testing.T) {
	su := NewStatUpdater(t.TempDir(), nil)

	stats, err := su.Latest(context.Background())
	require.NoError(t, err)
	assert.False(t, stats.SampledAt.IsZero())
	assert.GreaterOrEqual(t, stats.MemoryPercent, 0.0)

	again, err := su.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, stats.SampledAt, again.SampledAt)
}
