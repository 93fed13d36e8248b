package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

var (
	_ repository.WarehouseRepository = (*warehouseRepo)(nil)
	_ repository.ProductRepository   = (*productRepo)(nil)
)

type warehouseRepo struct{ s *Store }

func (r *warehouseRepo) Create(ctx context.Context, w *entity.Warehouse) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, x := range r.s.warehouses {
		if x.ID == w.ID || x.Code == w.Code {
			return fmt.Errorf("%w: bodega %s", domain.ErrDuplicate, w.Code)
		}
	}
	c := *w
	r.s.warehouses[w.ID] = &c
	return nil
}

func (r *warehouseRepo) GetByID(ctx context.Context, id string) (*entity.Warehouse, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	w, ok := r.s.warehouses[id]
	if !ok {
		return nil, nil
	}
	c := *w
	return &c, nil
}

func (r *warehouseRepo) GetByCode(ctx context.Context, code string) (*entity.Warehouse, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, w := range r.s.warehouses {
		if w.Code == code {
			c := *w
			return &c, nil
		}
	}
	return nil, nil
}

func (r *warehouseRepo) List(ctx context.Context, limit, offset int) ([]*entity.Warehouse, error) {
	r.s.mu.RLock()
	list := make([]*entity.Warehouse, 0, len(r.s.warehouses))
	for _, w := range r.s.warehouses {
		c := *w
		list = append(list, &c)
	}
	r.s.mu.RUnlock()
	sort.Slice(list, func(i, j int) bool { return list[i].Code < list[j].Code })
	return page(list, limit, offset), nil
}

type productRepo struct{ s *Store }

func (r *productRepo) Create(ctx context.Context, p *entity.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, x := range r.s.products {
		if x.ID == p.ID || x.SKU == p.SKU {
			return fmt.Errorf("%w: producto %s", domain.ErrDuplicate, p.SKU)
		}
	}
	c := *p
	r.s.products[p.ID] = &c
	return nil
}

func (r *productRepo) GetByID(ctx context.Context, id string) (*entity.Product, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.products[id]
	if !ok {
		return nil, nil
	}
	c := *p
	return &c, nil
}

func (r *productRepo) GetBySKU(ctx context.Context, sku string) (*entity.Product, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, p := range r.s.products {
		if p.SKU == sku {
			c := *p
			return &c, nil
		}
	}
	return nil, nil
}

func (r *productRepo) List(ctx context.Context, limit, offset int) ([]*entity.Product, error) {
	r.s.mu.RLock()
	list := make([]*entity.Product, 0, len(r.s.products))
	for _, p := range r.s.products {
		c := *p
		list = append(list, &c)
	}
	r.s.mu.RUnlock()
	sort.Slice(list, func(i, j int) bool { return list[i].SKU < list[j].SKU })
	return page(list, limit, offset), nil
}

func page[T any](list []T, limit, offset int) []T {
	if offset >= len(list) {
		return []T{}
	}
	list = list[offset:]
	if limit > 0 && limit < len(list) {
		list = list[:limit]
	}
	return list
}
