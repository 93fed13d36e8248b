package inventory

import (
	"context"
	"fmt"
	"iter"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

// Límites de página del historial.
const (
	DefaultHistoryPageSize = 100
	MaxHistoryPageSize     = 500
)

// QueryService lecturas sin bloqueo: saldos, historial del libro, stock bajo y documentos.
// Nunca bloquea escrituras ni devuelve estado parcial de un movimiento en curso.
type QueryService struct {
	stock     repository.StockRepository
	ledger    repository.LedgerRepository
	docs      repository.DocumentRepository
	projector *BalanceProjector
	pageSize  int
}

// NewQueryService construye el servicio. pageSize <= 0 usa DefaultHistoryPageSize.
func NewQueryService(
	stock repository.StockRepository,
	ledger repository.LedgerRepository,
	docs repository.DocumentRepository,
	projector *BalanceProjector,
	pageSize int,
) *QueryService {
	return &QueryService{stock: stock, ledger: ledger, docs: docs, projector: projector, pageSize: clampPage(pageSize)}
}

// CurrentStock saldos materializados filtrados por producto y/o bodega.
// Las claves en falla se marcan Stale y su cantidad sale de sumar el libro.
func (s *QueryService) CurrentStock(ctx context.Context, productID, warehouseID string) ([]entity.StockBalance, error) {
	list, err := s.stock.List(ctx, productID, warehouseID)
	if err != nil {
		return nil, classify(err)
	}
	for i := range list {
		if !s.projector.IsFaulted(list[i].Key()) {
			continue
		}
		list[i].Stale = true
		qty, err := s.projector.Replay(ctx, list[i].Key())
		if err != nil {
			return nil, classify(err)
		}
		list[i].Quantity = qty
	}
	return list, nil
}

// History recorre el libro en orden de ID de forma perezosa, página por página.
// Para reanudar basta pasar como AfterID el ID del último asiento recibido.
func (s *QueryService) History(ctx context.Context, filter entity.LedgerFilter) iter.Seq2[entity.LedgerEntry, error] {
	return func(yield func(entity.LedgerEntry, error) bool) {
		f := filter
		f.Limit = s.pageSize
		if filter.Limit > 0 {
			f.Limit = clampPage(filter.Limit)
		}
		for {
			page, err := s.ledger.List(ctx, f)
			if err != nil {
				yield(entity.LedgerEntry{}, classify(err))
				return
			}
			for _, e := range page {
				if !yield(e, nil) {
					return
				}
			}
			if len(page) < f.Limit {
				return
			}
			f.AfterID = page[len(page)-1].ID
		}
	}
}

// HistoryPage devuelve una página y el cursor para la siguiente (0 si no hay más).
func (s *QueryService) HistoryPage(ctx context.Context, filter entity.LedgerFilter) ([]entity.LedgerEntry, int64, error) {
	if filter.AfterID < 0 {
		return nil, 0, domain.Invalid("after_id", "no puede ser negativo")
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, 0, domain.Invalid("to", "debe ser posterior a from")
	}
	if filter.ReferenceType != "" && !filter.ReferenceType.Valid() {
		return nil, 0, domain.Invalid("reference_type", fmt.Sprintf("tipo %q desconocido", filter.ReferenceType))
	}
	if filter.Limit <= 0 {
		filter.Limit = s.pageSize
	}
	filter.Limit = clampPage(filter.Limit)
	page, err := s.ledger.List(ctx, filter)
	if err != nil {
		return nil, 0, classify(err)
	}
	var next int64
	if len(page) == filter.Limit {
		next = page[len(page)-1].ID
	}
	return page, next, nil
}

// LowStock saldos por debajo del punto de reorden del producto.
func (s *QueryService) LowStock(ctx context.Context, warehouseID string) ([]entity.LowStockItem, error) {
	items, err := s.stock.ListLowStock(ctx, warehouseID)
	if err != nil {
		return nil, classify(err)
	}
	return items, nil
}

// Document devuelve un documento con sus renglones y los asientos que produjo.
func (s *QueryService) Document(ctx context.Context, id string) (*entity.MovementDocument, []entity.LedgerEntry, error) {
	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		return nil, nil, classify(err)
	}
	if doc == nil {
		return nil, nil, fmt.Errorf("%w: documento %s", domain.ErrNotFound, id)
	}
	entries, err := s.ledger.ListByReference(ctx, id)
	if err != nil {
		return nil, nil, classify(err)
	}
	return doc, entries, nil
}

func clampPage(n int) int {
	switch {
	case n <= 0:
		return DefaultHistoryPageSize
	case n > MaxHistoryPageSize:
		return MaxHistoryPageSize
	}
	return n
}
