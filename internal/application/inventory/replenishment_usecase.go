package inventory

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/stock-ledger/internal/application/dto"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

// demandWindow ventana de salidas usada para priorizar la reposición.
const demandWindow = 90 * 24 * time.Hour

// ReplenishmentUseCase genera la lista de reposición para una bodega.
// Combina los saldos bajo punto de reorden con las salidas recientes del libro.
type ReplenishmentUseCase struct {
	stockRepo  repository.StockRepository
	ledgerRepo repository.LedgerRepository
	now        func() time.Time
}

// NewReplenishmentUseCase construye el caso de uso de reposición.
func NewReplenishmentUseCase(stockRepo repository.StockRepository, ledgerRepo repository.LedgerRepository) *ReplenishmentUseCase {
	return &ReplenishmentUseCase{stockRepo: stockRepo, ledgerRepo: ledgerRepo, now: time.Now}
}

// GenerateReplenishmentList devuelve los saldos bajo punto de reorden con la cantidad sugerida
// de pedido, ordenados por salidas de los últimos 90 días y luego por déficit.
// warehouseID puede ser vacío para considerar todas las bodegas.
func (uc *ReplenishmentUseCase) GenerateReplenishmentList(ctx context.Context, warehouseID string) ([]dto.ReplenishmentSuggestionDTO, error) {
	// 1. Saldos por debajo del punto de reorden
	items, err := uc.stockRepo.ListLowStock(ctx, warehouseID)
	if err != nil {
		return nil, classify(err)
	}
	if len(items) == 0 {
		return []dto.ReplenishmentSuggestionDTO{}, nil
	}

	// 2. Salidas netas recientes por clave (DELIVERY menos DELIVERY_REVERSAL)
	from := uc.now().Add(-demandWindow)
	delivered, err := uc.deliveredSince(ctx, warehouseID, from)
	if err != nil {
		return nil, err
	}

	// 3. Construir sugerencias
	factor := decimal.NewFromFloat(1.5)
	out := make([]dto.ReplenishmentSuggestionDTO, 0, len(items))
	for _, it := range items {
		ideal := it.ReorderPoint.Mul(factor)
		qty := ideal.Sub(it.Quantity)
		if qty.IsNegative() {
			qty = decimal.Zero
		}
		key := entity.BalanceKey{ProductID: it.ProductID, WarehouseID: it.WarehouseID}
		out = append(out, dto.ReplenishmentSuggestionDTO{
			ProductID:            it.ProductID,
			SKU:                  it.SKU,
			ProductName:          it.ProductName,
			WarehouseID:          it.WarehouseID,
			CurrentStock:         it.Quantity,
			ReorderPoint:         it.ReorderPoint,
			IdealStock:           ideal,
			SuggestedOrderQty:    qty,
			UnitsDeliveredLast90: delivered[key],
		})
	}

	// 4. Ordenar: más salidas primero, luego mayor déficit bajo el reorden
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.UnitsDeliveredLast90.Equal(b.UnitsDeliveredLast90) {
			return a.UnitsDeliveredLast90.GreaterThan(b.UnitsDeliveredLast90)
		}
		return a.ReorderPoint.Sub(a.CurrentStock).GreaterThan(b.ReorderPoint.Sub(b.CurrentStock))
	})

	// 5. Asignar prioridad (1 = más urgente)
	for i := range out {
		out[i].Priority = i + 1
	}
	return out, nil
}

// deliveredSince suma las salidas desde from y descuenta las reversiones de salidas canceladas.
// Una reversión dentro de la ventana de una salida anterior a ella no deja la clave en negativo.
func (uc *ReplenishmentUseCase) deliveredSince(ctx context.Context, warehouseID string, from time.Time) (map[entity.BalanceKey]decimal.Decimal, error) {
	out := make(map[entity.BalanceKey]decimal.Decimal)
	for _, ref := range []entity.ReferenceType{entity.ReferenceDelivery, entity.ReferenceDelivery.Reversal()} {
		filter := entity.LedgerFilter{
			WarehouseID:   warehouseID,
			ReferenceType: ref,
			From:          &from,
			Limit:         MaxHistoryPageSize,
		}
		for {
			page, err := uc.ledgerRepo.List(ctx, filter)
			if err != nil {
				return nil, classify(err)
			}
			for _, e := range page {
				out[e.Key()] = out[e.Key()].Sub(e.QuantityChange)
			}
			if len(page) < filter.Limit {
				break
			}
			filter.AfterID = page[len(page)-1].ID
		}
	}
	for k, v := range out {
		if v.IsNegative() {
			out[k] = decimal.Zero
		}
	}
	return out, nil
}
