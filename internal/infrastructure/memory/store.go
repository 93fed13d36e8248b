// Package memory implementa los repositorios y el TxRunner en memoria.
// Las escrituras de una transacción se acumulan y se aplican juntas al confirmar;
// si el callback falla no queda nada visible. La exclusión por clave la da el KeyedLocker del motor.
// Una transacción que agrega al libro retiene appendMu hasta terminar: los IDs se hacen
// visibles en el mismo orden en que se asignan.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/stock-ledger/internal/application/inventory"
	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

var _ inventory.TxRunner = (*Store)(nil)

// Store estado compartido del almacén en memoria.
type Store struct {
	mu         sync.RWMutex
	appendMu   sync.Mutex
	nextID     int64
	entries    []entity.LedgerEntry // ordenados por ID
	tail       map[entity.BalanceKey]entity.LedgerEntry
	balances   map[entity.BalanceKey]entity.StockBalance
	docs       map[string]*entity.MovementDocument
	warehouses map[string]*entity.Warehouse
	products   map[string]*entity.Product

	// inyección de fallas (tests)
	appendsBeforeFailure int
	failAppend           bool
	failCommit           bool

	now func() time.Time
}

// NewStore crea un almacén vacío.
func NewStore() *Store {
	return &Store{
		tail:       make(map[entity.BalanceKey]entity.LedgerEntry),
		balances:   make(map[entity.BalanceKey]entity.StockBalance),
		docs:       make(map[string]*entity.MovementDocument),
		warehouses: make(map[string]*entity.Warehouse),
		products:   make(map[string]*entity.Product),
		now:        time.Now,
	}
}

// FailAppendAfter hace fallar con ErrStorageUnavailable el Append siguiente a n Append exitosos.
func (s *Store) FailAppendAfter(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAppend = true
	s.appendsBeforeFailure = n
}

// FailNextCommit hace fallar la próxima confirmación.
func (s *Store) FailNextCommit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failCommit = true
}

// CorruptBalance sobrescribe un saldo sin pasar por el libro (tests de consistencia).
func (s *Store) CorruptBalance(key entity.BalanceKey, qty decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.balances[key]
	b.ProductID, b.WarehouseID = key.ProductID, key.WarehouseID
	b.Quantity = qty
	s.balances[key] = b
}

// Ledger, Stock y Documents devuelven repositorios fuera de transacción: cada escritura se confirma sola.
func (s *Store) Ledger() repository.LedgerRepository      { return &ledgerRepo{s: s} }
func (s *Store) Stock() repository.StockRepository        { return &stockRepo{s: s} }
func (s *Store) Documents() repository.DocumentRepository { return &documentRepo{s: s} }

// Warehouses y Products catálogos (sin transacción).
func (s *Store) Warehouses() repository.WarehouseRepository { return &warehouseRepo{s: s} }
func (s *Store) Products() repository.ProductRepository     { return &productRepo{s: s} }

// Run ejecuta fn con repositorios atados a una transacción nueva y confirma si fn no falla.
func (s *Store) Run(ctx context.Context, fn func(
	ledgerRepo repository.LedgerRepository,
	stockRepo repository.StockRepository,
	docRepo repository.DocumentRepository,
) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t := s.begin()
	if err := fn(&ledgerRepo{s: s, t: t}, &stockRepo{s: s, t: t}, &documentRepo{s: s, t: t}); err != nil {
		t.release()
		return err
	}
	return t.commit()
}

// txn escrituras pendientes; la usa una sola goroutine.
type txn struct {
	s         *Store
	appending bool // retiene s.appendMu
	entries   []entity.LedgerEntry
	tail      map[entity.BalanceKey]entity.LedgerEntry
	balances  map[entity.BalanceKey]entity.StockBalance
	docs      map[string]*entity.MovementDocument
}

func (s *Store) begin() *txn {
	return &txn{
		s:        s,
		tail:     make(map[entity.BalanceKey]entity.LedgerEntry),
		balances: make(map[entity.BalanceKey]entity.StockBalance),
		docs:     make(map[string]*entity.MovementDocument),
	}
}

// acquireAppend toma appendMu en el primer Append de la transacción.
func (t *txn) acquireAppend() {
	if !t.appending {
		t.s.appendMu.Lock()
		t.appending = true
	}
}

func (t *txn) release() {
	if t.appending {
		t.appending = false
		t.s.appendMu.Unlock()
	}
}

func (t *txn) commit() error {
	defer t.release()
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCommit {
		s.failCommit = false
		return fmt.Errorf("%w: commit", domain.ErrStorageUnavailable)
	}
	// con appendMu retenido ningún otro escritor asignó IDs desde el primer Append de t
	s.entries = append(s.entries, t.entries...)
	for k, v := range t.tail {
		s.tail[k] = v
	}
	for k, v := range t.balances {
		s.balances[k] = v
	}
	for id, d := range t.docs {
		s.docs[id] = d
	}
	return nil
}

// write ejecuta fn en la tx del repo o, si no hay, en una tx propia que confirma al terminar.
func write(s *Store, t *txn, fn func(t *txn) error) error {
	if t != nil {
		return fn(t)
	}
	own := s.begin()
	if err := fn(own); err != nil {
		own.release()
		return err
	}
	return own.commit()
}

func cloneDocument(d *entity.MovementDocument) *entity.MovementDocument {
	if d == nil {
		return nil
	}
	c := *d
	c.Lines = append([]entity.DocumentLine(nil), d.Lines...)
	return &c
}
