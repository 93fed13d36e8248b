package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

var _ repository.LedgerRepository = (*ledgerRepo)(nil)

type ledgerRepo struct {
	s *Store
	t *txn
}

func (r *ledgerRepo) Append(ctx context.Context, d entity.LedgerEntryDraft) (*entity.LedgerEntry, error) {
	if !d.ReferenceType.Valid() {
		return nil, domain.Invalid("reference_type", fmt.Sprintf("tipo %q desconocido", d.ReferenceType))
	}
	var out entity.LedgerEntry
	err := write(r.s, r.t, func(t *txn) error {
		s := r.s
		t.acquireAppend()
		s.mu.Lock()
		if s.failAppend {
			if s.appendsBeforeFailure == 0 {
				s.failAppend = false
				s.mu.Unlock()
				return fmt.Errorf("%w: append", domain.ErrStorageUnavailable)
			}
			s.appendsBeforeFailure--
		}
		s.nextID++
		id := s.nextID
		prev, ok := t.tail[d.Key()]
		if !ok {
			prev = s.tail[d.Key()]
		}
		now := s.now()
		s.mu.Unlock()

		out = entity.LedgerEntry{
			ID:               id,
			ProductID:        d.ProductID,
			WarehouseID:      d.WarehouseID,
			ReferenceType:    d.ReferenceType,
			ReferenceID:      d.ReferenceID,
			ReversesEntryID:  d.ReversesEntryID,
			QuantityChange:   d.QuantityChange,
			ResultingBalance: prev.ResultingBalance.Add(d.QuantityChange),
			Reason:           d.Reason,
			PerformedBy:      d.PerformedBy,
			Notes:            d.Notes,
			CreatedAt:        now,
		}
		t.entries = append(t.entries, out)
		t.tail[d.Key()] = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *ledgerRepo) List(ctx context.Context, f entity.LedgerFilter) ([]entity.LedgerEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []entity.LedgerEntry
	r.s.mu.RLock()
	start := sort.Search(len(r.s.entries), func(i int) bool { return r.s.entries[i].ID > f.AfterID })
	for _, e := range r.s.entries[start:] {
		if f.Matches(e) {
			out = append(out, e)
		}
		if r.t == nil && f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	r.s.mu.RUnlock()
	if r.t != nil {
		for _, e := range r.t.entries {
			if e.ID > f.AfterID && f.Matches(e) {
				out = append(out, e)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
		if f.Limit > 0 && len(out) > f.Limit {
			out = out[:f.Limit]
		}
	}
	return out, nil
}

func (r *ledgerRepo) ListByReference(ctx context.Context, referenceID string) ([]entity.LedgerEntry, error) {
	return r.List(ctx, entity.LedgerFilter{ReferenceID: referenceID})
}

func (r *ledgerRepo) Last(ctx context.Context, productID, warehouseID string) (*entity.LedgerEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	k := entity.BalanceKey{ProductID: productID, WarehouseID: warehouseID}
	if r.t != nil {
		if e, ok := r.t.tail[k]; ok {
			return &e, nil
		}
	}
	r.s.mu.RLock()
	e, ok := r.s.tail[k]
	r.s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (r *ledgerRepo) Keys(ctx context.Context, productID, warehouseID string) ([]entity.BalanceKey, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	seen := make(map[entity.BalanceKey]struct{})
	add := func(k entity.BalanceKey) {
		if (productID == "" || k.ProductID == productID) && (warehouseID == "" || k.WarehouseID == warehouseID) {
			seen[k] = struct{}{}
		}
	}
	r.s.mu.RLock()
	for k := range r.s.tail {
		add(k)
	}
	r.s.mu.RUnlock()
	if r.t != nil {
		for k := range r.t.tail {
			add(k)
		}
	}
	keys := make([]entity.BalanceKey, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys, nil
}
