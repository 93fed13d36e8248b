package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/inventory"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
	"github.com/jhoicas/stock-ledger/pkg/logger"
	"github.com/jhoicas/stock-ledger/pkg/metrics"
)

// EngineConfig parámetros del motor.
type EngineConfig struct {
	// LockTimeout límite de espera de bloqueos cuando el ctx del llamador no trae deadline.
	LockTimeout time.Duration
	// RecoverMaxElapsed tiempo máximo de reintentos por documento en Recover.
	RecoverMaxElapsed time.Duration
}

// MovementEngine ejecuta y cancela documentos de movimiento. Cada operación es atómica:
// documento, asientos y saldos se confirman juntos o no se confirma nada.
type MovementEngine struct {
	txRunner   TxRunner
	docs       repository.DocumentRepository
	ledger     repository.LedgerRepository
	warehouses repository.WarehouseRepository
	products   repository.ProductRepository
	projector  *BalanceProjector
	locker     *KeyedLocker
	log        *logger.Logger
	metrics    *metrics.Metrics
	cfg        EngineConfig
	now        func() time.Time
}

// NewMovementEngine construye el motor. docs, ledger, warehouses y products son repositorios fuera de tx.
func NewMovementEngine(
	txRunner TxRunner,
	docs repository.DocumentRepository,
	ledger repository.LedgerRepository,
	warehouses repository.WarehouseRepository,
	products repository.ProductRepository,
	projector *BalanceProjector,
	locker *KeyedLocker,
	log *logger.Logger,
	m *metrics.Metrics,
	cfg EngineConfig,
) *MovementEngine {
	return &MovementEngine{
		txRunner:   txRunner,
		docs:       docs,
		ledger:     ledger,
		warehouses: warehouses,
		products:   products,
		projector:  projector,
		locker:     locker,
		log:        log,
		metrics:    m,
		cfg:        cfg,
		now:        time.Now,
	}
}

// ExecuteReceipt crea y ejecuta una entrada.
func (e *MovementEngine) ExecuteReceipt(ctx context.Context, in ReceiptInput) (*MovementResult, error) {
	return e.createAndExecute(ctx, DocumentInput{
		Type:        entity.DocumentReceipt,
		WarehouseID: in.WarehouseID,
		Party:       in.Supplier,
		Notes:       in.Notes,
		PerformedBy: in.PerformedBy,
		Lines:       linesFrom(in.Lines),
	})
}

// ExecuteDelivery crea y ejecuta una salida.
func (e *MovementEngine) ExecuteDelivery(ctx context.Context, in DeliveryInput) (*MovementResult, error) {
	return e.createAndExecute(ctx, DocumentInput{
		Type:        entity.DocumentDelivery,
		WarehouseID: in.WarehouseID,
		Party:       in.Customer,
		Notes:       in.Notes,
		PerformedBy: in.PerformedBy,
		Lines:       linesFrom(in.Lines),
	})
}

// ExecuteTransfer crea y ejecuta un traslado: dos asientos por renglón, origen y destino.
func (e *MovementEngine) ExecuteTransfer(ctx context.Context, in TransferInput) (*MovementResult, error) {
	return e.createAndExecute(ctx, DocumentInput{
		Type:            entity.DocumentTransfer,
		FromWarehouseID: in.FromWarehouseID,
		ToWarehouseID:   in.ToWarehouseID,
		Notes:           in.Notes,
		PerformedBy:     in.PerformedBy,
		Lines:           linesFrom(in.Lines),
	})
}

// ExecuteAdjustment crea y ejecuta un ajuste de un producto.
func (e *MovementEngine) ExecuteAdjustment(ctx context.Context, in AdjustmentInput) (*MovementResult, error) {
	if (in.QuantityChange == nil) == (in.CountedQuantity == nil) {
		return nil, domain.Invalid("quantity_change", "indique quantity_change o counted_quantity, no ambos")
	}
	return e.createAndExecute(ctx, DocumentInput{
		Type:        entity.DocumentAdjustment,
		WarehouseID: in.WarehouseID,
		Reason:      in.Reason,
		Notes:       in.Notes,
		PerformedBy: in.PerformedBy,
		Lines: []DocumentLineInput{{
			ProductID:       in.ProductID,
			QuantityChange:  in.QuantityChange,
			CountedQuantity: in.CountedQuantity,
		}},
	})
}

// createAndExecute deja el documento en borrador si la ejecución es rechazada.
func (e *MovementEngine) createAndExecute(ctx context.Context, in DocumentInput) (*MovementResult, error) {
	doc, err := e.CreateDraft(ctx, in)
	if err != nil {
		return nil, err
	}
	return e.Execute(ctx, doc.ID, in.PerformedBy)
}

// CreateDraft valida la forma del documento, verifica que bodegas y productos existan y lo persiste en DRAFT.
func (e *MovementEngine) CreateDraft(ctx context.Context, in DocumentInput) (*entity.MovementDocument, error) {
	if strings.TrimSpace(in.PerformedBy) == "" {
		return nil, domain.Invalid("performed_by", "es requerido")
	}
	now := e.now()
	doc := &entity.MovementDocument{
		ID:              uuid.New().String(),
		Type:            in.Type,
		Status:          entity.StatusDraft,
		WarehouseID:     in.WarehouseID,
		FromWarehouseID: in.FromWarehouseID,
		ToWarehouseID:   in.ToWarehouseID,
		Party:           in.Party,
		Reason:          entity.AdjustmentReason(in.Reason),
		Notes:           in.Notes,
		CreatedBy:       in.PerformedBy,
		CreatedAt:       now,
		UpdatedAt:       now,
		Lines:           make([]entity.DocumentLine, len(in.Lines)),
	}
	if r, ok := entity.ParseAdjustmentReason(in.Reason); ok {
		doc.Reason = r
	}
	for i, l := range in.Lines {
		line := entity.DocumentLine{
			LineNo:          i + 1,
			ProductID:       l.ProductID,
			Quantity:        l.Quantity,
			CountedQuantity: l.CountedQuantity,
			ExpiryDate:      l.ExpiryDate,
		}
		if l.QuantityChange != nil {
			line.QuantityChange = *l.QuantityChange
			line.Quantity = l.QuantityChange.Abs()
		}
		doc.Lines[i] = line
	}
	if err := inventory.ValidateDocument(doc); err != nil {
		return nil, err
	}
	if err := e.checkReferences(ctx, doc); err != nil {
		return nil, classify(err)
	}
	if err := e.docs.Create(ctx, doc); err != nil {
		return nil, classify(err)
	}
	e.log.Debug().Str("document_id", doc.ID).Str("type", string(doc.Type)).Int("lines", len(doc.Lines)).Msg("borrador creado")
	return doc, nil
}

func (e *MovementEngine) checkReferences(ctx context.Context, doc *entity.MovementDocument) error {
	type ref struct{ field, id string }
	whs := []ref{{"warehouse_id", doc.WarehouseID}}
	if doc.Type == entity.DocumentTransfer {
		whs = []ref{{"from_warehouse_id", doc.FromWarehouseID}, {"to_warehouse_id", doc.ToWarehouseID}}
	}
	for _, w := range whs {
		wh, err := e.warehouses.GetByID(ctx, w.id)
		if err != nil {
			return err
		}
		if wh == nil {
			return domain.Invalid(w.field, fmt.Sprintf("bodega %s no existe", w.id))
		}
	}
	seen := make(map[string]struct{}, len(doc.Lines))
	for i, l := range doc.Lines {
		if _, ok := seen[l.ProductID]; ok {
			continue
		}
		seen[l.ProductID] = struct{}{}
		p, err := e.products.GetByID(ctx, l.ProductID)
		if err != nil {
			return err
		}
		if p == nil {
			return domain.Invalid(fmt.Sprintf("lines[%d].product_id", i), fmt.Sprintf("producto %s no existe", l.ProductID))
		}
	}
	return nil
}

// Execute ejecuta un borrador: valida todos los renglones contra los saldos leídos bajo bloqueo,
// y sólo si todos pasan escribe documento, asientos y saldos en una única transacción.
// Una vez iniciada la escritura la cancelación del ctx ya no la interrumpe.
func (e *MovementEngine) Execute(ctx context.Context, docID, performedBy string) (*MovementResult, error) {
	if strings.TrimSpace(performedBy) == "" {
		return nil, domain.Invalid("performed_by", "es requerido")
	}
	ctx, cancel := e.withLockTimeout(ctx)
	defer cancel()

	doc, err := e.draft(ctx, docID, entity.StatusDraft, "sólo un borrador puede ejecutarse")
	if err != nil {
		return nil, err
	}
	unlock, err := e.lock(ctx, doc.ID, doc.Keys())
	if err != nil {
		return nil, e.finish(doc, "execute", err)
	}
	defer unlock()

	var res MovementResult
	err = e.txRunner.Run(ctx, func(ledgerRepo repository.LedgerRepository, stockRepo repository.StockRepository, docRepo repository.DocumentRepository) error {
		cur, err := e.forUpdate(ctx, docRepo, docID, entity.StatusDraft, "sólo un borrador puede ejecutarse")
		if err != nil {
			return err
		}
		balances, err := e.lockBalances(ctx, ledgerRepo, stockRepo, cur.Keys())
		if err != nil {
			return err
		}
		if err := resolveLines(cur, quantities(balances)); err != nil {
			return err
		}

		wctx := context.WithoutCancel(ctx)
		if err := cur.MarkExecuted(performedBy, e.now()); err != nil {
			return err
		}
		if err := docRepo.Update(wctx, cur); err != nil {
			return err
		}
		entries, err := e.appendAll(wctx, ledgerRepo, stockRepo, balances, cur.PlannedEntries())
		if err != nil {
			return err
		}
		res = MovementResult{Document: cur, Entries: entries}
		return nil
	})
	if err != nil {
		return nil, e.finish(doc, "execute", err)
	}
	e.metrics.EntriesAppended(len(res.Entries))
	_ = e.finish(res.Document, "execute", nil)
	return &res, nil
}

// Cancel revierte un documento ejecutado: un asiento compensatorio por cada asiento original,
// en el mismo orden. Falla con stock insuficiente si alguna reversión dejaría un saldo negativo.
func (e *MovementEngine) Cancel(ctx context.Context, docID, performedBy string) (*CancelResult, error) {
	if strings.TrimSpace(performedBy) == "" {
		return nil, domain.Invalid("performed_by", "es requerido")
	}
	ctx, cancel := e.withLockTimeout(ctx)
	defer cancel()

	const notExecuted = "sólo un documento ejecutado puede cancelarse; un borrador se descarta"
	doc, err := e.draft(ctx, docID, entity.StatusExecuted, notExecuted)
	if err != nil {
		return nil, err
	}
	unlock, err := e.lock(ctx, doc.ID, doc.Keys())
	if err != nil {
		return nil, e.finish(doc, "cancel", err)
	}
	defer unlock()

	var res CancelResult
	err = e.txRunner.Run(ctx, func(ledgerRepo repository.LedgerRepository, stockRepo repository.StockRepository, docRepo repository.DocumentRepository) error {
		cur, err := e.forUpdate(ctx, docRepo, docID, entity.StatusExecuted, notExecuted)
		if err != nil {
			return err
		}
		existing, err := ledgerRepo.ListByReference(ctx, cur.ID)
		if err != nil {
			return err
		}
		originals, reversals := splitEntries(existing)
		if len(originals) != cur.DeclaredEntries() || len(reversals) != 0 {
			return fmt.Errorf("%w: documento %s con asientos incompletos, ejecute la recuperación", domain.ErrConflict, cur.ID)
		}
		balances, err := e.lockBalances(ctx, ledgerRepo, stockRepo, cur.Keys())
		if err != nil {
			return err
		}
		drafts, err := reversalDrafts(cur.ID, originals, performedBy, quantities(balances))
		if err != nil {
			return err
		}

		wctx := context.WithoutCancel(ctx)
		if err := cur.MarkCancelled(performedBy, e.now()); err != nil {
			return err
		}
		if err := docRepo.Update(wctx, cur); err != nil {
			return err
		}
		entries, err := e.appendAll(wctx, ledgerRepo, stockRepo, balances, drafts)
		if err != nil {
			return err
		}
		res = CancelResult{Document: cur, ReversalEntries: entries}
		return nil
	})
	if err != nil {
		return nil, e.finish(doc, "cancel", err)
	}
	e.metrics.EntriesAppended(len(res.ReversalEntries))
	_ = e.finish(res.Document, "cancel", nil)
	return &res, nil
}

// Discard descarta un borrador (DRAFT -> CANCELLED_AS_DRAFT) sin tocar el libro.
func (e *MovementEngine) Discard(ctx context.Context, docID, performedBy string) (*entity.MovementDocument, error) {
	if strings.TrimSpace(performedBy) == "" {
		return nil, domain.Invalid("performed_by", "es requerido")
	}
	ctx, cancel := e.withLockTimeout(ctx)
	defer cancel()

	unlock, err := e.lock(ctx, docID, nil)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var out *entity.MovementDocument
	err = e.txRunner.Run(ctx, func(_ repository.LedgerRepository, _ repository.StockRepository, docRepo repository.DocumentRepository) error {
		cur, err := e.forUpdate(ctx, docRepo, docID, entity.StatusDraft, "sólo un borrador puede descartarse")
		if err != nil {
			return err
		}
		if err := cur.MarkDiscarded(performedBy, e.now()); err != nil {
			return err
		}
		if err := docRepo.Update(context.WithoutCancel(ctx), cur); err != nil {
			return err
		}
		out = cur
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}
	e.log.Info().Str("document_id", docID).Str("performed_by", performedBy).Msg("borrador descartado")
	return out, nil
}

// Recover completa documentos confirmados cuyos asientos no están todos en el libro:
// agrega los asientos faltantes del plan y, si el documento fue cancelado, las reversiones faltantes.
// Los errores transitorios de almacenamiento se reintentan con backoff exponencial.
func (e *MovementEngine) Recover(ctx context.Context) (int, error) {
	docs, err := e.docs.ListByStatus(ctx, entity.StatusExecuted, entity.StatusCancelledAfterExecution)
	if err != nil {
		return 0, classify(err)
	}
	total := 0
	var errs []error
	for _, d := range docs {
		var n int
		op := func() error {
			var err error
			n, err = e.completeDocument(ctx, d)
			if err == nil || errors.Is(err, domain.ErrStorageUnavailable) || errors.Is(err, domain.ErrTimeout) {
				return err
			}
			return backoff.Permanent(err)
		}
		b := backoff.NewExponentialBackOff()
		b.MaxElapsedTime = e.cfg.RecoverMaxElapsed
		if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
			e.log.Error().Err(err).Str("document_id", d.ID).Msg("no fue posible completar el documento")
			errs = append(errs, fmt.Errorf("documento %s: %w", d.ID, err))
			continue
		}
		if n > 0 {
			e.log.Warn().Str("document_id", d.ID).Int("entries", n).Msg("asientos faltantes completados")
		}
		total += n
	}
	e.metrics.RecoveredEntries(total)
	return total, errors.Join(errs...)
}

func (e *MovementEngine) completeDocument(ctx context.Context, doc *entity.MovementDocument) (int, error) {
	ctx, cancel := e.withLockTimeout(ctx)
	defer cancel()

	unlock, err := e.lock(ctx, doc.ID, doc.Keys())
	if err != nil {
		return 0, err
	}
	defer unlock()

	n := 0
	err = e.txRunner.Run(ctx, func(ledgerRepo repository.LedgerRepository, stockRepo repository.StockRepository, docRepo repository.DocumentRepository) error {
		n = 0
		cur, err := docRepo.GetForUpdate(ctx, doc.ID)
		if err != nil {
			return err
		}
		if cur == nil {
			return fmt.Errorf("%w: documento %s", domain.ErrNotFound, doc.ID)
		}
		existing, err := ledgerRepo.ListByReference(ctx, cur.ID)
		if err != nil {
			return err
		}
		originals, reversals := splitEntries(existing)
		plan := cur.PlannedEntries()
		if err := matchesPlan(cur.ID, originals, plan); err != nil {
			return err
		}
		missing := plan[len(originals):]
		cancelled := cur.Status == entity.StatusCancelledAfterExecution
		if len(missing) == 0 && (!cancelled || len(reversals) == len(originals)) {
			return nil
		}

		balances, err := e.lockBalances(ctx, ledgerRepo, stockRepo, cur.Keys())
		if err != nil {
			return err
		}
		running := quantities(balances)
		for _, d := range missing {
			k := d.Key()
			if d.QuantityChange.IsNegative() {
				if err := inventory.CheckWithdrawal(k, running[k], d.QuantityChange.Neg()); err != nil {
					return err
				}
			}
			running[k] = running[k].Add(d.QuantityChange)
		}

		wctx := context.WithoutCancel(ctx)
		appended, err := e.appendAll(wctx, ledgerRepo, stockRepo, balances, missing)
		if err != nil {
			return err
		}
		n += len(appended)
		if !cancelled {
			return nil
		}
		all := append(originals, appended...)
		if len(reversals) > len(all) {
			return fmt.Errorf("%w: documento %s con más reversiones que asientos", domain.ErrConsistencyFault, cur.ID)
		}
		drafts, err := reversalDrafts(cur.ID, all[len(reversals):], cur.CancelledBy, running)
		if err != nil {
			return err
		}
		reversed, err := e.appendAll(wctx, ledgerRepo, stockRepo, balances, drafts)
		if err != nil {
			return err
		}
		n += len(reversed)
		return nil
	})
	if err != nil {
		return 0, classify(err)
	}
	e.metrics.EntriesAppended(n)
	return n, nil
}

// draft lee el documento fuera de tx para conocer sus claves y comprueba el estado esperado.
func (e *MovementEngine) draft(ctx context.Context, docID string, want entity.DocumentStatus, msg string) (*entity.MovementDocument, error) {
	doc, err := e.docs.GetByID(ctx, docID)
	if err != nil {
		return nil, classify(err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: documento %s", domain.ErrNotFound, docID)
	}
	if doc.Status != want {
		return nil, domain.Invalid("status", fmt.Sprintf("%s (estado %s)", msg, doc.Status))
	}
	return doc, nil
}

// forUpdate relee el documento con bloqueo dentro de la tx; el estado pudo cambiar antes del bloqueo.
func (e *MovementEngine) forUpdate(ctx context.Context, docRepo repository.DocumentRepository, docID string, want entity.DocumentStatus, msg string) (*entity.MovementDocument, error) {
	cur, err := docRepo.GetForUpdate(ctx, docID)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		return nil, fmt.Errorf("%w: documento %s", domain.ErrNotFound, docID)
	}
	if cur.Status != want {
		return nil, domain.Invalid("status", fmt.Sprintf("%s (estado %s)", msg, cur.Status))
	}
	return cur, nil
}

// lock adquiere el documento y luego los saldos en orden (warehouse_id, product_id).
func (e *MovementEngine) lock(ctx context.Context, docID string, keys []entity.BalanceKey) (func(), error) {
	names := make([]string, 0, len(keys)+1)
	names = append(names, DocumentLockKey(docID))
	for _, k := range keys {
		names = append(names, BalanceLockKey(k))
	}
	start := time.Now()
	unlock, err := e.locker.Lock(ctx, names...)
	e.metrics.ObserveLockWait(time.Since(start))
	return unlock, err
}

// lockBalances lee los saldos con bloqueo de fila en el mismo orden de los bloqueos en proceso.
func (e *MovementEngine) lockBalances(
	ctx context.Context,
	ledgerRepo repository.LedgerRepository,
	stockRepo repository.StockRepository,
	keys []entity.BalanceKey,
) (map[entity.BalanceKey]*entity.StockBalance, error) {
	out := make(map[entity.BalanceKey]*entity.StockBalance, len(keys))
	for _, k := range keys {
		bal, err := e.projector.CurrentBalance(ctx, ledgerRepo, stockRepo, k)
		if err != nil {
			return nil, err
		}
		out[k] = bal
	}
	return out, nil
}

func (e *MovementEngine) appendAll(
	ctx context.Context,
	ledgerRepo repository.LedgerRepository,
	stockRepo repository.StockRepository,
	balances map[entity.BalanceKey]*entity.StockBalance,
	drafts []entity.LedgerEntryDraft,
) ([]entity.LedgerEntry, error) {
	out := make([]entity.LedgerEntry, 0, len(drafts))
	for _, d := range drafts {
		entry, err := ledgerRepo.Append(ctx, d)
		if err != nil {
			return nil, err
		}
		bal, ok := balances[d.Key()]
		if !ok {
			return nil, fmt.Errorf("saldo %s no bloqueado", d.Key())
		}
		if err := e.projector.ApplyEntry(ctx, stockRepo, bal, entry); err != nil {
			return nil, err
		}
		out = append(out, *entry)
	}
	return out, nil
}

func (e *MovementEngine) withLockTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || e.cfg.LockTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, e.cfg.LockTimeout)
}

// finish clasifica el error, cuenta el resultado y lo registra.
func (e *MovementEngine) finish(doc *entity.MovementDocument, op string, err error) error {
	err = classify(err)
	outcome := outcomeOf(op, err)
	e.metrics.Movement(string(doc.Type), outcome)
	ev := e.log.Info()
	switch outcome {
	case "rejected":
		ev = e.log.Warn()
	case "timeout", "fault", "error":
		ev = e.log.Error()
	}
	ev.Err(err).
		Str("op", op).
		Str("document_id", doc.ID).
		Str("type", string(doc.Type)).
		Str("status", string(doc.Status)).
		Str("outcome", outcome).
		Msg("movimiento procesado")
	return err
}

func outcomeOf(op string, err error) string {
	switch {
	case err == nil:
		if op == "cancel" {
			return "cancelled"
		}
		return "executed"
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrConflict):
		return "rejected"
	case errors.Is(err, domain.ErrTimeout):
		return "timeout"
	case isFault(err):
		return "fault"
	}
	return "error"
}

// classify traduce la expiración o cancelación del ctx a domain.ErrTimeout.
func classify(err error) error {
	switch {
	case err == nil, errors.Is(err, domain.ErrTimeout):
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %v", domain.ErrTimeout, err)
	}
	return err
}

// resolveLines valida todos los renglones contra saldos en curso (varios renglones pueden
// afectar la misma clave) y fija el cambio resuelto de cada uno. No escribe nada.
func resolveLines(doc *entity.MovementDocument, running map[entity.BalanceKey]decimal.Decimal) error {
	for i := range doc.Lines {
		l := &doc.Lines[i]
		switch doc.Type {
		case entity.DocumentReceipt:
			k := entity.BalanceKey{ProductID: l.ProductID, WarehouseID: doc.WarehouseID}
			ch, err := inventory.ResolveReceipt(*l)
			if err != nil {
				return err
			}
			l.QuantityChange = ch
			running[k] = running[k].Add(ch)
		case entity.DocumentDelivery:
			k := entity.BalanceKey{ProductID: l.ProductID, WarehouseID: doc.WarehouseID}
			ch, err := inventory.ResolveDelivery(k, *l, running[k])
			if err != nil {
				return err
			}
			l.QuantityChange = ch
			running[k] = running[k].Add(ch)
		case entity.DocumentTransfer:
			src := entity.BalanceKey{ProductID: l.ProductID, WarehouseID: doc.FromWarehouseID}
			dst := entity.BalanceKey{ProductID: l.ProductID, WarehouseID: doc.ToWarehouseID}
			out, in, err := inventory.ResolveTransfer(src, *l, running[src])
			if err != nil {
				return err
			}
			l.QuantityChange = in
			running[src] = running[src].Add(out)
			running[dst] = running[dst].Add(in)
		case entity.DocumentAdjustment:
			k := entity.BalanceKey{ProductID: l.ProductID, WarehouseID: doc.WarehouseID}
			ch, err := inventory.ResolveAdjustment(k, doc.Reason, *l, running[k])
			if err != nil {
				return err
			}
			l.QuantityChange = ch
			l.Quantity = ch.Abs()
			running[k] = running[k].Add(ch)
		}
	}
	return nil
}

// reversalDrafts arma una reversión por asiento original y verifica que ninguna deje saldo negativo.
func reversalDrafts(docID string, originals []entity.LedgerEntry, by string, running map[entity.BalanceKey]decimal.Decimal) ([]entity.LedgerEntryDraft, error) {
	out := make([]entity.LedgerEntryDraft, 0, len(originals))
	for _, o := range originals {
		k := o.Key()
		if err := inventory.CheckReversal(k, o.QuantityChange, running[k]); err != nil {
			return nil, err
		}
		running[k] = running[k].Sub(o.QuantityChange)
		id := o.ID
		out = append(out, entity.LedgerEntryDraft{
			ProductID:       o.ProductID,
			WarehouseID:     o.WarehouseID,
			ReferenceType:   o.ReferenceType.Reversal(),
			ReferenceID:     docID,
			ReversesEntryID: &id,
			QuantityChange:  o.QuantityChange.Neg(),
			Reason:          o.Reason,
			PerformedBy:     by,
			Notes:           fmt.Sprintf("reversión del asiento %d", o.ID),
		})
	}
	return out, nil
}

// matchesPlan comprueba que los asientos existentes sean un prefijo del plan del documento.
func matchesPlan(docID string, originals []entity.LedgerEntry, plan []entity.LedgerEntryDraft) error {
	if len(originals) > len(plan) {
		return fmt.Errorf("%w: documento %s con más asientos que los declarados", domain.ErrConsistencyFault, docID)
	}
	for i, o := range originals {
		if o.Key() != plan[i].Key() || !o.QuantityChange.Equal(plan[i].QuantityChange) {
			return fmt.Errorf("%w: documento %s, asiento %d no coincide con el renglón", domain.ErrConsistencyFault, docID, o.ID)
		}
	}
	return nil
}

func splitEntries(entries []entity.LedgerEntry) (originals, reversals []entity.LedgerEntry) {
	for _, en := range entries {
		if en.ReferenceType.IsReversal() {
			reversals = append(reversals, en)
			continue
		}
		originals = append(originals, en)
	}
	return originals, reversals
}

func quantities(balances map[entity.BalanceKey]*entity.StockBalance) map[entity.BalanceKey]decimal.Decimal {
	out := make(map[entity.BalanceKey]decimal.Decimal, len(balances))
	for k, b := range balances {
		out[k] = b.Quantity
	}
	return out
}
