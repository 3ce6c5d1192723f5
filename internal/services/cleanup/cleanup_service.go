package cleanup

import (
	"context"
	"fmt"
	"time"

	"fiscal-offline-go/config"
	"fiscal-offline-go/internal/util/timezone"

	log "github.com/sirupsen/logrus"
)

// Purger entfernt abgeschlossene Operationen vor einem Stichtag
type Purger interface {
	PurgeTerminal(ctx context.Context, cutoff time.Time) (int, error)
}

// CleanupService ist verantwortlich für die automatische Bereinigung abgeschlossener Operationen
type CleanupService struct {
	purger Purger
	config config.CleanupConfig
	now    func() time.Time
}

// NewCleanupService erstellt einen neuen Cleanup-Service
func NewCleanupService(purger Purger, cfg config.CleanupConfig) *CleanupService {
	return &CleanupService{
		purger: purger,
		config: cfg,
		now:    timezone.Now,
	}
}

// Start führt die Bereinigung sofort und danach im Intervall aus, bis ctx endet
func (s *CleanupService) Start(ctx context.Context) {
	log.Info("Cleanup service started")

	// Sofort eine erste Bereinigung durchführen
	if _, err := s.RunCleanup(ctx); err != nil {
		log.Errorf("Initial cleanup failed: %v", err)
	}

	interval := s.config.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.RunCleanup(ctx); err != nil {
				log.Errorf("Scheduled cleanup failed: %v", err)
			}
		case <-ctx.Done():
			log.Info("Cleanup service stopped")
			return
		}
	}
}

// RunCleanup löscht abgeschlossene Operationen, die älter als die Aufbewahrungsdauer sind
func (s *CleanupService) RunCleanup(ctx context.Context) (int, error) {
	if s.config.Retention <= 0 {
		log.Debug("Cleanup disabled (retention <= 0)")
		return 0, nil
	}

	cutoff := s.now().Add(-s.config.Retention)
	removed, err := s.purger.PurgeTerminal(ctx, cutoff)
	if err != nil {
		return removed, fmt.Errorf("failed to purge operations: %w", err)
	}

	if removed > 0 {
		log.Infof("Cleanup completed: removed %d operations finished before %s", removed, timezone.RFC3339(cutoff))
	}
	return removed, nil
}
