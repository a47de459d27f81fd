package events

import (
	"context"

	"github.com/cellbank/cellbank-backend/internal/stock/repository"
	"github.com/cellbank/cellbank-backend/pkg/logger"
	"github.com/cellbank/cellbank-backend/pkg/messaging"
)

// StockEventPublisher publishes stock-related events. All methods are
// nil-receiver safe so the service can run without a broker.
type StockEventPublisher struct {
	publisher *messaging.Publisher
	logger    *logger.Logger
}

// NewStockEventPublisher creates a new stock event publisher
func NewStockEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*StockEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeStockEvents, "stock-service", log)
	if err != nil {
		return nil, err
	}

	return &StockEventPublisher{
		publisher: publisher,
		logger:    log,
	}, nil
}

// PublishMovementRecorded publishes a movement recorded event
func (p *StockEventPublisher) PublishMovementRecorded(ctx context.Context, batch *repository.Batch, m *repository.Movement) {
	if p == nil {
		return
	}

	data := messaging.MovementRecordedEvent{
		MovementID:     m.ID,
		BatchID:        m.BatchID,
		NomenclatureID: batch.NomenclatureID,
		MovementType:   m.MovementType,
		UnitDelta:      m.UnitDelta,
	}
	if m.VolumeDelta.Valid {
		data.VolumeDelta = m.VolumeDelta.Decimal.String()
	}
	if m.Reason != nil {
		data.Reason = *m.Reason
	}
	if m.OperationRef != nil {
		data.OperationRef = *m.OperationRef
	}
	if m.PerformedBy != nil {
		data.PerformedBy = *m.PerformedBy
	}

	if err := p.publisher.Publish(ctx, messaging.EventMovementRecorded, data); err != nil {
		p.logger.Error().Err(err).Str("batch_id", m.BatchID).Msg("failed to publish movement recorded event")
	}
}

// PublishBatchReceived publishes a batch received event
func (p *StockEventPublisher) PublishBatchReceived(ctx context.Context, batch *repository.Batch) {
	if p == nil {
		return
	}

	data := messaging.BatchReceivedEvent{
		BatchID:        batch.ID,
		NomenclatureID: batch.NomenclatureID,
		BatchNumber:    batch.BatchNumber,
		Quantity:       batch.Quantity,
		ExpirationDate: batch.ExpirationDate,
	}

	if err := p.publisher.Publish(ctx, messaging.EventBatchReceived, data); err != nil {
		p.logger.Error().Err(err).Str("batch_id", batch.ID).Msg("failed to publish batch received event")
	}
}

// PublishBatchDepleted publishes a batch depleted event
func (p *StockEventPublisher) PublishBatchDepleted(ctx context.Context, batch *repository.Batch) {
	if p == nil {
		return
	}

	data := messaging.BatchDepletedEvent{
		BatchID:        batch.ID,
		NomenclatureID: batch.NomenclatureID,
		BatchNumber:    batch.BatchNumber,
	}

	if err := p.publisher.Publish(ctx, messaging.EventBatchDepleted, data); err != nil {
		p.logger.Error().Err(err).Str("batch_id", batch.ID).Msg("failed to publish batch depleted event")
	}
}

// PublishBatchExpiring publishes an expiring or expired batch event
func (p *StockEventPublisher) PublishBatchExpiring(ctx context.Context, batch *repository.Batch, daysUntil int, expired bool) {
	if p == nil || batch.ExpirationDate == nil {
		return
	}

	data := messaging.BatchExpiringEvent{
		BatchID:         batch.ID,
		NomenclatureID:  batch.NomenclatureID,
		BatchNumber:     batch.BatchNumber,
		ExpirationDate:  *batch.ExpirationDate,
		DaysUntilExpiry: daysUntil,
		Expired:         expired,
	}

	eventType := messaging.EventBatchExpiring
	if expired {
		eventType = messaging.EventBatchExpired
	}

	if err := p.publisher.Publish(ctx, eventType, data); err != nil {
		p.logger.Error().Err(err).Str("batch_id", batch.ID).Msg("failed to publish batch expiring event")
	}
}
