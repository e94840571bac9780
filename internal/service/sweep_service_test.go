package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/MoainAlabbasi/telegram-archive-bot/internal/models"
	"github.com/MoainAlabbasi/telegram-archive-bot/pkg/config"
)

type stubSweepRepo struct {
	files []models.File
}

func (s *stubSweepRepo) ListForSweep(ctx context.Context, cutoff time.Time, limit int) ([]models.File, error) {
	out := s.files
	s.files = nil
	return out, nil
}

type stubRefresher struct {
	refreshed chan string
}

func (s *stubRefresher) RefreshLink(ctx context.Context, file *models.File) (string, error) {
	s.refreshed <- file.ID
	return "https://files.example.com/" + file.ID, nil
}

func TestSweepRefreshesListedFiles(t *testing.T) {
	repo := &stubSweepRepo{files: []models.File{
		{ID: "f1", TelegramFileID: "tg-1"},
		{ID: "f2", TelegramFileID: "tg-2"},
	}}
	refresher := &stubRefresher{refreshed: make(chan string, 4)}
	svc := NewSweepService(repo, refresher, zapNop(), config.SweepConfig{
		Enabled:     true,
		Interval:    time.Hour,
		Concurrency: 2,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(done)
	}()

	seen := map[string]bool{}
	for len(seen) < 2 {
		select {
		case id := <-refresher.refreshed:
			seen[id] = true
		case <-time.After(2 * time.Second):
			t.Fatal("sweep did not refresh all files in time")
		}
	}
	cancel()
	<-done

	assert.True(t, seen["f1"])
	assert.True(t, seen["f2"])
}

func TestSweepDisabledReturnsImmediately(t *testing.T) {
	svc := NewSweepService(&stubSweepRepo{}, &stubRefresher{refreshed: make(chan string, 1)}, zapNop(), config.SweepConfig{Enabled: false})

	done := make(chan struct{})
	go func() {
		svc.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled sweep should not block")
	}
}
