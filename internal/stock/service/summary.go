package service

import (
	"context"
	"time"

	"github.com/cellbank/cellbank-backend/pkg/config"
)

// StockSummary is a whole-ledger overview for the dashboard.
type StockSummary struct {
	TotalItems        int64            `json:"total_items"`
	TotalBatches      int64            `json:"total_batches"`
	TotalUnits        int              `json:"total_units"`
	ExpiringCount     int64            `json:"expiring_count"`
	ExpiredCount      int64            `json:"expired_count"`
	DepletedCount     int64            `json:"depleted_count"`
	CategoryBreakdown map[string]int64 `json:"category_breakdown"`
}

// GetStockSummary aggregates the ledger across all nomenclature items.
func (s *LedgerService) GetStockSummary(ctx context.Context) (*StockSummary, error) {
	items, err := s.catalogRepo.GetAllActive(ctx)
	if err != nil {
		return nil, err
	}

	batches, err := s.batchRepo.GetAllActiveBatches(ctx)
	if err != nil {
		return nil, err
	}

	summary := &StockSummary{
		TotalItems:        int64(len(items)),
		CategoryBreakdown: make(map[string]int64),
	}

	categoryByItem := make(map[string]string, len(items))
	for _, item := range items {
		categoryByItem[item.ID] = item.Category
	}

	now := time.Now().UTC()
	for _, b := range batches {
		summary.TotalBatches++

		if b.IsDepleted() {
			summary.DepletedCount++
			continue
		}
		if b.IsExpiredAt(now) {
			summary.ExpiredCount++
			continue
		}
		if b.ExpirationDate != nil {
			daysUntil := int(b.ExpirationDate.Sub(now).Hours() / 24)
			if daysUntil <= s.expiringWindowDays() {
				summary.ExpiringCount++
			}
		}

		summary.TotalUnits += b.Quantity
		if cat, ok := categoryByItem[b.NomenclatureID]; ok {
			summary.CategoryBreakdown[cat] += int64(b.Quantity)
		}
	}

	return summary, nil
}

func (s *LedgerService) expiringWindowDays() int {
	if s.expiryWarningDays > 0 {
		return s.expiryWarningDays
	}
	return config.DefaultWarningWindowDays
}
