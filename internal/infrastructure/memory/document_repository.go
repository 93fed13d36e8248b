package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

var _ repository.DocumentRepository = (*documentRepo)(nil)

type documentRepo struct {
	s *Store
	t *txn
}

func (r *documentRepo) Create(ctx context.Context, d *entity.MovementDocument) error {
	return write(r.s, r.t, func(t *txn) error {
		r.s.mu.RLock()
		_, exists := r.s.docs[d.ID]
		r.s.mu.RUnlock()
		if _, pending := t.docs[d.ID]; exists || pending {
			return fmt.Errorf("%w: documento %s", domain.ErrDuplicate, d.ID)
		}
		t.docs[d.ID] = cloneDocument(d)
		return nil
	})
}

func (r *documentRepo) GetByID(ctx context.Context, id string) (*entity.MovementDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.t != nil {
		if d, ok := r.t.docs[id]; ok {
			return cloneDocument(d), nil
		}
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return cloneDocument(r.s.docs[id]), nil
}

// GetForUpdate igual que GetByID; la exclusión la da el KeyedLocker.
func (r *documentRepo) GetForUpdate(ctx context.Context, id string) (*entity.MovementDocument, error) {
	return r.GetByID(ctx, id)
}

func (r *documentRepo) Update(ctx context.Context, d *entity.MovementDocument) error {
	return write(r.s, r.t, func(t *txn) error {
		r.s.mu.RLock()
		_, exists := r.s.docs[d.ID]
		r.s.mu.RUnlock()
		if _, pending := t.docs[d.ID]; !exists && !pending {
			return fmt.Errorf("%w: documento %s", domain.ErrNotFound, d.ID)
		}
		t.docs[d.ID] = cloneDocument(d)
		return nil
	})
}

func (r *documentRepo) ListByStatus(ctx context.Context, statuses ...entity.DocumentStatus) ([]*entity.MovementDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	var out []*entity.MovementDocument
	for _, d := range r.s.docs {
		if len(statuses) == 0 || slices.Contains(statuses, d.Status) {
			out = append(out, cloneDocument(d))
		}
	}
	r.s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
