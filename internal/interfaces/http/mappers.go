package http

import (
	"github.com/jhoicas/stock-ledger/internal/application/dto"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

func toDocumentResponse(d *entity.MovementDocument) dto.DocumentResponse {
	lines := make([]dto.DocumentLineResponse, len(d.Lines))
	for i, l := range d.Lines {
		lines[i] = dto.DocumentLineResponse{
			LineNo:          l.LineNo,
			ProductID:       l.ProductID,
			Quantity:        l.Quantity,
			CountedQuantity: l.CountedQuantity,
			QuantityChange:  l.QuantityChange,
			ExpiryDate:      l.ExpiryDate,
		}
	}
	return dto.DocumentResponse{
		ID:              d.ID,
		Type:            string(d.Type),
		Status:          string(d.Status),
		WarehouseID:     d.WarehouseID,
		FromWarehouseID: d.FromWarehouseID,
		ToWarehouseID:   d.ToWarehouseID,
		Party:           d.Party,
		Reason:          string(d.Reason),
		Notes:           d.Notes,
		CreatedBy:       d.CreatedBy,
		ExecutedBy:      d.ExecutedBy,
		CancelledBy:     d.CancelledBy,
		CreatedAt:       d.CreatedAt,
		ExecutedAt:      d.ExecutedAt,
		CancelledAt:     d.CancelledAt,
		Lines:           lines,
	}
}

func toEntryResponses(entries []entity.LedgerEntry) []dto.LedgerEntryResponse {
	out := make([]dto.LedgerEntryResponse, len(entries))
	for i, e := range entries {
		out[i] = dto.LedgerEntryResponse{
			ID:               e.ID,
			ProductID:        e.ProductID,
			WarehouseID:      e.WarehouseID,
			ReferenceType:    string(e.ReferenceType),
			ReferenceID:      e.ReferenceID,
			ReversesEntryID:  e.ReversesEntryID,
			QuantityChange:   e.QuantityChange,
			ResultingBalance: e.ResultingBalance,
			Reason:           e.Reason,
			PerformedBy:      e.PerformedBy,
			Notes:            e.Notes,
			CreatedAt:        e.CreatedAt,
		}
	}
	return out
}

func toBalanceResponses(list []entity.StockBalance) []dto.StockBalanceResponse {
	out := make([]dto.StockBalanceResponse, len(list))
	for i, b := range list {
		out[i] = dto.StockBalanceResponse{
			ProductID:   b.ProductID,
			WarehouseID: b.WarehouseID,
			Quantity:    b.Quantity,
			LastEntryID: b.LastEntryID,
			UpdatedAt:   b.UpdatedAt,
			Stale:       b.Stale,
		}
	}
	return out
}

func toLowStockResponses(items []entity.LowStockItem) []dto.LowStockResponse {
	out := make([]dto.LowStockResponse, len(items))
	for i, it := range items {
		out[i] = dto.LowStockResponse{
			ProductID:    it.ProductID,
			SKU:          it.SKU,
			ProductName:  it.ProductName,
			WarehouseID:  it.WarehouseID,
			Quantity:     it.Quantity,
			ReorderPoint: it.ReorderPoint,
		}
	}
	return out
}
