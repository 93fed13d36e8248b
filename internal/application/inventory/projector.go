package inventory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
	"github.com/jhoicas/stock-ledger/pkg/logger"
	"github.com/jhoicas/stock-ledger/pkg/metrics"
)

// rebuildPageSize asientos por lectura al recorrer el libro de una clave.
const rebuildPageSize = 1000

// BalanceProjector mantiene la tabla de saldos como función del libro.
// Una clave en falla rechaza escrituras hasta que Rebuild la recalcule.
type BalanceProjector struct {
	txRunner TxRunner
	ledger   repository.LedgerRepository
	stock    repository.StockRepository
	locker   *KeyedLocker
	log      *logger.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	mu     sync.RWMutex
	faults map[entity.BalanceKey]*domain.ConsistencyFaultError
}

// NewBalanceProjector construye el proyector. ledger y stock son repositorios fuera de tx (lecturas de Verify).
func NewBalanceProjector(
	txRunner TxRunner,
	ledger repository.LedgerRepository,
	stock repository.StockRepository,
	locker *KeyedLocker,
	log *logger.Logger,
	m *metrics.Metrics,
) *BalanceProjector {
	return &BalanceProjector{
		txRunner: txRunner,
		ledger:   ledger,
		stock:    stock,
		locker:   locker,
		log:      log,
		metrics:  m,
		now:      time.Now,
		faults:   make(map[entity.BalanceKey]*domain.ConsistencyFaultError),
	}
}

// CurrentBalance lee el saldo bajo bloqueo de fila dentro de la tx del llamador y lo contrasta
// con el último asiento de la clave. Si no coinciden la clave queda en falla y se devuelve
// *domain.ConsistencyFaultError.
func (p *BalanceProjector) CurrentBalance(
	ctx context.Context,
	ledgerRepo repository.LedgerRepository,
	stockRepo repository.StockRepository,
	key entity.BalanceKey,
) (*entity.StockBalance, error) {
	if f := p.fault(key); f != nil {
		return nil, f
	}
	bal, err := stockRepo.GetForUpdate(ctx, key.ProductID, key.WarehouseID)
	if err != nil {
		return nil, err
	}
	last, err := ledgerRepo.Last(ctx, key.ProductID, key.WarehouseID)
	if err != nil {
		return nil, err
	}
	if f := checkTail(bal, last); f != nil {
		p.markFaulted(f)
		return nil, f
	}
	return bal, nil
}

// checkTail compara el saldo materializado con el último asiento: mismo ID y mismo saldo resultante.
// Sin asientos el saldo debe ser cero.
func checkTail(bal *entity.StockBalance, last *entity.LedgerEntry) *domain.ConsistencyFaultError {
	want, lastID := decimal.Zero, int64(0)
	if last != nil {
		want, lastID = last.ResultingBalance, last.ID
	}
	if bal.LastEntryID == lastID && bal.Quantity.Equal(want) {
		return nil
	}
	return &domain.ConsistencyFaultError{
		ProductID:   bal.ProductID,
		WarehouseID: bal.WarehouseID,
		Projected:   bal.Quantity,
		Ledger:      want,
	}
}

// Replay suma el libro de una clave; es la lectura de respaldo cuando la proyección no es confiable.
func (p *BalanceProjector) Replay(ctx context.Context, key entity.BalanceKey) (decimal.Decimal, error) {
	fold, err := foldLedger(ctx, p.ledger, key)
	if err != nil {
		return decimal.Zero, err
	}
	return fold.sum, nil
}

// ApplyEntry aplica un asiento recién agregado al saldo leído con CurrentBalance.
// Si el saldo previo más el cambio no coincide con el saldo resultante del libro, la clave queda en falla.
func (p *BalanceProjector) ApplyEntry(ctx context.Context, stockRepo repository.StockRepository, bal *entity.StockBalance, e *entity.LedgerEntry) error {
	next := bal.Quantity.Add(e.QuantityChange)
	if !next.Equal(e.ResultingBalance) || next.IsNegative() {
		f := &domain.ConsistencyFaultError{
			ProductID:   e.ProductID,
			WarehouseID: e.WarehouseID,
			Projected:   next,
			Ledger:      e.ResultingBalance,
		}
		p.markFaulted(f)
		return f
	}
	bal.Quantity = next
	bal.LastEntryID = e.ID
	bal.UpdatedAt = e.CreatedAt
	return stockRepo.Upsert(ctx, bal)
}

// IsFaulted indica si la clave está en falla de consistencia.
func (p *BalanceProjector) IsFaulted(key entity.BalanceKey) bool {
	return p.fault(key) != nil
}

// Faults devuelve las claves en falla, ordenadas.
func (p *BalanceProjector) Faults() []entity.BalanceKey {
	p.mu.RLock()
	keys := make([]entity.BalanceKey, 0, len(p.faults))
	for k := range p.faults {
		keys = append(keys, k)
	}
	p.mu.RUnlock()
	sortKeys(keys)
	return keys
}

func (p *BalanceProjector) fault(key entity.BalanceKey) *domain.ConsistencyFaultError {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.faults[key]
}

func (p *BalanceProjector) markFaulted(f *domain.ConsistencyFaultError) {
	key := entity.BalanceKey{ProductID: f.ProductID, WarehouseID: f.WarehouseID}
	p.mu.Lock()
	_, already := p.faults[key]
	p.faults[key] = f
	p.mu.Unlock()
	if already {
		return
	}
	p.metrics.ConsistencyFault()
	p.log.Error().
		Str("product_id", f.ProductID).
		Str("warehouse_id", f.WarehouseID).
		Str("projected", f.Projected.String()).
		Str("ledger", f.Ledger.String()).
		Msg("falla de consistencia: clave bloqueada hasta reconstruir")
}

func (p *BalanceProjector) clearFaults(keys []entity.BalanceKey) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, k := range keys {
		delete(p.faults, k)
	}
}

// Rebuild recalcula los saldos desde el libro para las claves que coinciden con el filtro
// (vacío = todas). Toma los mismos bloqueos que los movimientos; al terminar limpia las fallas.
func (p *BalanceProjector) Rebuild(ctx context.Context, productID, warehouseID string) ([]entity.StockBalance, error) {
	keys, err := p.knownKeys(ctx, productID, warehouseID)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = BalanceLockKey(k)
	}
	unlock, err := p.locker.Lock(ctx, names...)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var out []entity.StockBalance
	err = p.txRunner.Run(ctx, func(ledgerRepo repository.LedgerRepository, stockRepo repository.StockRepository, _ repository.DocumentRepository) error {
		out = make([]entity.StockBalance, 0, len(keys))
		for _, k := range keys {
			bal, err := stockRepo.GetForUpdate(ctx, k.ProductID, k.WarehouseID)
			if err != nil {
				return err
			}
			fold, err := foldLedger(ctx, ledgerRepo, k)
			if err != nil {
				return err
			}
			if fold.chainBreak != nil {
				p.log.Warn().Str("key", k.String()).Int64("entry_id", fold.chainBreak.ID).
					Msg("saldo resultante del libro no coincide con la suma; se usa la suma")
			}
			if fold.sum.IsNegative() {
				return &domain.ConsistencyFaultError{ProductID: k.ProductID, WarehouseID: k.WarehouseID, Projected: bal.Quantity, Ledger: fold.sum}
			}
			if !bal.Quantity.Equal(fold.sum) {
				p.log.Info().Str("key", k.String()).Str("from", bal.Quantity.String()).Str("to", fold.sum.String()).
					Msg("saldo corregido por reconstrucción")
			}
			bal.Quantity = fold.sum
			bal.LastEntryID = fold.lastID
			bal.UpdatedAt = p.now()
			if err := stockRepo.Upsert(ctx, bal); err != nil {
				return err
			}
			bal.Stale = false
			out = append(out, *bal)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	p.clearFaults(keys)
	p.log.Info().Int("keys", len(keys)).Msg("proyección reconstruida")
	return out, nil
}

// Verify compara cada saldo materializado con el libro sin tomar bloqueos y marca en falla
// las claves que no coinciden. Lee primero el libro y luego el saldo: un saldo más nuevo
// que la lectura del libro se omite (hubo escrituras concurrentes).
func (p *BalanceProjector) Verify(ctx context.Context) ([]entity.BalanceKey, error) {
	keys, err := p.ledger.Keys(ctx, "", "")
	if err != nil {
		return nil, err
	}
	inLedger := make(map[entity.BalanceKey]struct{}, len(keys))
	var faulted []entity.BalanceKey
	for _, k := range keys {
		inLedger[k] = struct{}{}
		fold, err := foldLedger(ctx, p.ledger, k)
		if err != nil {
			return nil, err
		}
		bal, err := p.stock.Get(ctx, k.ProductID, k.WarehouseID)
		if err != nil {
			return nil, err
		}
		switch {
		case bal.LastEntryID > fold.lastID:
			continue
		case bal.LastEntryID == fold.lastID && bal.Quantity.Equal(fold.sum) && fold.chainBreak == nil:
			continue
		}
		p.markFaulted(&domain.ConsistencyFaultError{ProductID: k.ProductID, WarehouseID: k.WarehouseID, Projected: bal.Quantity, Ledger: fold.sum})
		faulted = append(faulted, k)
	}

	// saldos sin asientos deben ser cero
	balances, err := p.stock.List(ctx, "", "")
	if err != nil {
		return nil, err
	}
	for _, b := range balances {
		if _, ok := inLedger[b.Key()]; ok || b.LastEntryID != 0 || b.Quantity.IsZero() {
			continue
		}
		p.markFaulted(&domain.ConsistencyFaultError{ProductID: b.ProductID, WarehouseID: b.WarehouseID, Projected: b.Quantity, Ledger: decimal.Zero})
		faulted = append(faulted, b.Key())
	}
	sortKeys(faulted)
	return faulted, nil
}

// knownKeys une las claves del libro y de la tabla de saldos.
func (p *BalanceProjector) knownKeys(ctx context.Context, productID, warehouseID string) ([]entity.BalanceKey, error) {
	fromLedger, err := p.ledger.Keys(ctx, productID, warehouseID)
	if err != nil {
		return nil, err
	}
	balances, err := p.stock.List(ctx, productID, warehouseID)
	if err != nil {
		return nil, err
	}
	seen := make(map[entity.BalanceKey]struct{}, len(fromLedger)+len(balances))
	keys := make([]entity.BalanceKey, 0, len(fromLedger)+len(balances))
	add := func(k entity.BalanceKey) {
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	for _, k := range fromLedger {
		add(k)
	}
	for _, b := range balances {
		add(b.Key())
	}
	sortKeys(keys)
	return keys, nil
}

type ledgerFold struct {
	sum        decimal.Decimal
	lastID     int64
	chainBreak *entity.LedgerEntry
}

// foldLedger suma los cambios de una clave en orden de ID y verifica la cadena de saldos resultantes.
func foldLedger(ctx context.Context, ledger repository.LedgerRepository, k entity.BalanceKey) (ledgerFold, error) {
	var f ledgerFold
	filter := entity.LedgerFilter{ProductID: k.ProductID, WarehouseID: k.WarehouseID, Limit: rebuildPageSize}
	for {
		page, err := ledger.List(ctx, filter)
		if err != nil {
			return f, err
		}
		for i := range page {
			e := page[i]
			f.sum = f.sum.Add(e.QuantityChange)
			f.lastID = e.ID
			if f.chainBreak == nil && !f.sum.Equal(e.ResultingBalance) {
				f.chainBreak = &e
			}
		}
		if len(page) < filter.Limit {
			return f, nil
		}
		filter.AfterID = page[len(page)-1].ID
	}
}

func sortKeys(keys []entity.BalanceKey) {
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
}

// isFault indica si err es una falla de consistencia.
func isFault(err error) bool {
	return errors.Is(err, domain.ErrConsistencyFault)
}
