package memory

import (
	"context"
	"sort"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

var _ repository.StockRepository = (*stockRepo)(nil)

type stockRepo struct {
	s *Store
	t *txn
}

func (r *stockRepo) Get(ctx context.Context, productID, warehouseID string) (*entity.StockBalance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	k := entity.BalanceKey{ProductID: productID, WarehouseID: warehouseID}
	if r.t != nil {
		if b, ok := r.t.balances[k]; ok {
			return &b, nil
		}
	}
	r.s.mu.RLock()
	b, ok := r.s.balances[k]
	r.s.mu.RUnlock()
	if !ok {
		b = entity.StockBalance{ProductID: productID, WarehouseID: warehouseID}
	}
	return &b, nil
}

// GetForUpdate igual que Get; la exclusión la da el KeyedLocker.
func (r *stockRepo) GetForUpdate(ctx context.Context, productID, warehouseID string) (*entity.StockBalance, error) {
	return r.Get(ctx, productID, warehouseID)
}

func (r *stockRepo) Upsert(ctx context.Context, b *entity.StockBalance) error {
	return write(r.s, r.t, func(t *txn) error {
		c := *b
		c.Stale = false
		t.balances[c.Key()] = c
		return nil
	})
}

func (r *stockRepo) List(ctx context.Context, productID, warehouseID string) ([]entity.StockBalance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	merged := make(map[entity.BalanceKey]entity.StockBalance)
	r.s.mu.RLock()
	for k, b := range r.s.balances {
		merged[k] = b
	}
	r.s.mu.RUnlock()
	if r.t != nil {
		for k, b := range r.t.balances {
			merged[k] = b
		}
	}
	out := make([]entity.StockBalance, 0, len(merged))
	for k, b := range merged {
		if (productID == "" || k.ProductID == productID) && (warehouseID == "" || k.WarehouseID == warehouseID) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key().Less(out[j].Key()) })
	return out, nil
}

func (r *stockRepo) ListLowStock(ctx context.Context, warehouseID string) ([]entity.LowStockItem, error) {
	list, err := r.List(ctx, "", warehouseID)
	if err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []entity.LowStockItem
	for _, b := range list {
		p, ok := r.s.products[b.ProductID]
		if !ok || !b.Quantity.LessThan(p.ReorderPoint) {
			continue
		}
		out = append(out, entity.LowStockItem{
			ProductID:    p.ID,
			SKU:          p.SKU,
			ProductName:  p.Name,
			WarehouseID:  b.WarehouseID,
			Quantity:     b.Quantity,
			ReorderPoint: p.ReorderPoint,
		})
	}
	return out, nil
}
