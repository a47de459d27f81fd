package service

import (
	"context"
	"time"

	"github.com/cellbank/cellbank-backend/internal/stock/events"
	"github.com/cellbank/cellbank-backend/internal/stock/repository"
	"github.com/cellbank/cellbank-backend/pkg/config"
	"github.com/cellbank/cellbank-backend/pkg/logger"
)

// ExpiryScanner periodically sweeps the batch ledger, flips batches whose
// expiration date has passed to expired and publishes warnings for batches
// approaching it. Expiration is already enforced lazily at selection time;
// the scanner only catches up the stored statuses and feeds notifications.
type ExpiryScanner struct {
	batchRepo *repository.BatchRepository
	publisher *events.StockEventPublisher
	cfg       config.ScannerConfig
	logger    *logger.Logger
	cancel    context.CancelFunc
}

// NewExpiryScanner creates a new expiry scanner
func NewExpiryScanner(batchRepo *repository.BatchRepository, publisher *events.StockEventPublisher, cfg config.ScannerConfig, log *logger.Logger) *ExpiryScanner {
	return &ExpiryScanner{
		batchRepo: batchRepo,
		publisher: publisher,
		cfg:       cfg,
		logger:    log,
	}
}

// Start runs the scanner in a background goroutine, scanning once
// immediately and then on every interval tick.
func (s *ExpiryScanner) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	go func() {
		s.logger.Info().Dur("interval", s.cfg.Interval).Msg("expiry scanner started")

		if err := s.Scan(ctx); err != nil {
			s.logger.Error().Err(err).Msg("expiry scan failed")
		}

		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info().Msg("expiry scanner stopped")
				return
			case <-ticker.C:
				if err := s.Scan(ctx); err != nil {
					s.logger.Error().Err(err).Msg("expiry scan failed")
				}
			}
		}
	}()
}

// Stop stops the scanner goroutine
func (s *ExpiryScanner) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

// Scan runs one sweep over active batches with an expiration date inside
// the warning window.
func (s *ExpiryScanner) Scan(ctx context.Context) error {
	start := time.Now()

	batches, err := s.batchRepo.GetExpiringBatches(ctx, s.cfg.WarningWindowDays)
	if err != nil {
		return err
	}

	expired := 0
	warned := 0
	now := time.Now().UTC()

	for _, batch := range batches {
		if batch.ExpirationDate == nil {
			continue
		}
		daysUntil := int(time.Until(*batch.ExpirationDate).Hours() / 24)

		if batch.IsExpiredAt(now) {
			if err := s.batchRepo.UpdateStatus(ctx, batch.ID, repository.StatusExpired); err != nil {
				s.logger.Error().Err(err).Str("batch_id", batch.ID).Msg("failed to mark batch expired")
				continue
			}
			batch.Status = repository.StatusExpired
			s.publisher.PublishBatchExpiring(ctx, batch, daysUntil, true)
			expired++
			continue
		}

		if daysUntil <= s.cfg.CriticalWindowDays {
			s.logger.Warn().
				Str("batch_id", batch.ID).
				Str("batch_number", batch.BatchNumber).
				Int("days_until_expiry", daysUntil).
				Msg("batch expires imminently")
		}
		s.publisher.PublishBatchExpiring(ctx, batch, daysUntil, false)
		warned++
	}

	s.logger.Info().
		Dur("duration", time.Since(start)).
		Int("scanned", len(batches)).
		Int("expired", expired).
		Int("expiring_soon", warned).
		Msg("expiry scan completed")

	return nil
}
