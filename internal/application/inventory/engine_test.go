package inventory_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/stock-ledger/internal/application/inventory"
	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// Entrada 100, traslado 30 a W2, salida de 80 rechazada y conteo físico de 65.
func TestEngine_EscenarioBodegaWyW2(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	w, w2, x := h.warehouse(t, "W"), h.warehouse(t, "W2"), h.product(t, "SKU-X", 0)

	h.receive(t, w, x, 100)
	assert.True(t, h.balance(t, w, x).Equal(d(100)))

	_, err := h.engine.ExecuteTransfer(ctx, inventory.TransferInput{
		FromWarehouseID: w, ToWarehouseID: w2, PerformedBy: "u1",
		Lines: []inventory.LineInput{{ProductID: x, Quantity: d(30)}},
	})
	require.NoError(t, err)
	assert.True(t, h.balance(t, w, x).Equal(d(70)))
	assert.True(t, h.balance(t, w2, x).Equal(d(30)))

	_, err = h.engine.ExecuteDelivery(ctx, inventory.DeliveryInput{
		WarehouseID: w, PerformedBy: "u1",
		Lines: []inventory.LineInput{{ProductID: x, Quantity: d(80)}},
	})
	var ise *domain.InsufficientStockError
	require.True(t, errors.As(err, &ise))
	assert.True(t, ise.Have.Equal(d(70)))
	assert.True(t, ise.Requested.Equal(d(80)))
	assert.True(t, h.balance(t, w, x).Equal(d(70)), "el saldo no cambia tras un rechazo")

	res, err := h.engine.ExecuteAdjustment(ctx, inventory.AdjustmentInput{
		WarehouseID: w, ProductID: x, Reason: "count", CountedQuantity: ptr(d(65)), PerformedBy: "u1",
	})
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
	assert.True(t, res.Entries[0].QuantityChange.Equal(d(-5)))
	assert.True(t, res.Entries[0].ResultingBalance.Equal(d(65)))
	assert.Equal(t, "count", res.Entries[0].Reason)
	assert.True(t, h.balance(t, w, x).Equal(d(65)))

	for _, wh := range []string{w, w2} {
		assert.True(t, h.ledgerSum(t, wh, x).Equal(h.balance(t, wh, x)), "fold del libro == saldo en %s", wh)
	}
}

func TestEngine_TrasladoProduceMenosQyMasQ(t *testing.T) {
	h := newHarness(t)
	w, w2, p := h.warehouse(t, "A"), h.warehouse(t, "B"), h.product(t, "P", 0)
	h.receive(t, w, p, 10)

	res, err := h.engine.ExecuteTransfer(context.Background(), inventory.TransferInput{
		FromWarehouseID: w, ToWarehouseID: w2, PerformedBy: "u1",
		Lines: []inventory.LineInput{{ProductID: p, Quantity: decimal.RequireFromString("2.5")}},
	})
	require.NoError(t, err)
	require.Len(t, res.Entries, 2)
	assert.Equal(t, w, res.Entries[0].WarehouseID)
	assert.True(t, res.Entries[0].QuantityChange.Equal(decimal.RequireFromString("-2.5")))
	assert.Equal(t, w2, res.Entries[1].WarehouseID)
	assert.True(t, res.Entries[1].QuantityChange.Equal(decimal.RequireFromString("2.5")))
	assert.Equal(t, res.Document.ID, res.Entries[0].ReferenceID)
	assert.Equal(t, entity.ReferenceTransfer, res.Entries[1].ReferenceType)
	assert.Less(t, res.Entries[0].ID, res.Entries[1].ID)
}

func TestEngine_TrasladoMismaBodegaRechazado(t *testing.T) {
	h := newHarness(t)
	w, p := h.warehouse(t, "A"), h.product(t, "P", 0)
	h.receive(t, w, p, 10)

	_, err := h.engine.ExecuteTransfer(context.Background(), inventory.TransferInput{
		FromWarehouseID: w, ToWarehouseID: w, PerformedBy: "u1",
		Lines: []inventory.LineInput{{ProductID: p, Quantity: d(1)}},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Equal(t, 1, h.entryCount(t))
}

// Un documento con varios renglones se rechaza completo si uno falla.
func TestEngine_SalidaMultiRenglonTodoONada(t *testing.T) {
	h := newHarness(t)
	w, p1, p2 := h.warehouse(t, "A"), h.product(t, "P1", 0), h.product(t, "P2", 0)
	h.receive(t, w, p1, 10)
	h.receive(t, w, p2, 1)

	_, err := h.engine.ExecuteDelivery(context.Background(), inventory.DeliveryInput{
		WarehouseID: w, PerformedBy: "u1",
		Lines: []inventory.LineInput{{ProductID: p1, Quantity: d(5)}, {ProductID: p2, Quantity: d(2)}},
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.True(t, h.balance(t, w, p1).Equal(d(10)))
	assert.True(t, h.balance(t, w, p2).Equal(d(1)))
	assert.Equal(t, 2, h.entryCount(t))
}

// Dos renglones del mismo producto se validan contra el saldo acumulado.
func TestEngine_RenglonesRepetidosUsanSaldoEnCurso(t *testing.T) {
	h := newHarness(t)
	w, p := h.warehouse(t, "A"), h.product(t, "P", 0)
	h.receive(t, w, p, 10)

	_, err := h.engine.ExecuteDelivery(context.Background(), inventory.DeliveryInput{
		WarehouseID: w, PerformedBy: "u1",
		Lines: []inventory.LineInput{{ProductID: p, Quantity: d(6)}, {ProductID: p, Quantity: d(6)}},
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.True(t, h.balance(t, w, p).Equal(d(10)))
}

func TestEngine_ReferenciasInexistentes(t *testing.T) {
	h := newHarness(t)
	w := h.warehouse(t, "A")
	_, err := h.engine.ExecuteReceipt(context.Background(), inventory.ReceiptInput{
		WarehouseID: w, PerformedBy: "u1",
		Lines: []inventory.LineInput{{ProductID: "no-existe", Quantity: d(1)}},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	p := h.product(t, "P", 0)
	_, err = h.engine.ExecuteReceipt(context.Background(), inventory.ReceiptInput{
		WarehouseID: "no-existe", PerformedBy: "u1",
		Lines: []inventory.LineInput{{ProductID: p, Quantity: d(1)}},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Equal(t, 0, h.entryCount(t))
}

func TestEngine_PerformedByRequerido(t *testing.T) {
	h := newHarness(t)
	w, p := h.warehouse(t, "A"), h.product(t, "P", 0)
	_, err := h.engine.ExecuteReceipt(context.Background(), inventory.ReceiptInput{
		WarehouseID: w, Lines: []inventory.LineInput{{ProductID: p, Quantity: d(1)}},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestEngine_CancelarEntradaRestauraSaldo(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	w, p := h.warehouse(t, "A"), h.product(t, "P", 0)
	h.receive(t, w, p, 5)
	res := h.receive(t, w, p, 20)

	out, err := h.engine.Cancel(ctx, res.Document.ID, "u2")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusCancelledAfterExecution, out.Document.Status)
	require.Len(t, out.ReversalEntries, 1)
	rev := out.ReversalEntries[0]
	assert.Equal(t, entity.ReferenceReceipt.Reversal(), rev.ReferenceType)
	require.NotNil(t, rev.ReversesEntryID)
	assert.Equal(t, res.Entries[0].ID, *rev.ReversesEntryID)
	assert.True(t, rev.QuantityChange.Equal(d(-20)))
	assert.Equal(t, "u2", rev.PerformedBy)
	assert.True(t, h.balance(t, w, p).Equal(d(5)))

	// la segunda cancelación falla y no agrega asientos
	before := h.entryCount(t)
	_, err = h.engine.Cancel(ctx, res.Document.ID, "u2")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Equal(t, before, h.entryCount(t))

	doc, entries, err := h.query.Document(ctx, res.Document.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusCancelledAfterExecution, doc.Status)
	assert.Len(t, entries, 2, "el historial conserva original y reversión")
}

func TestEngine_CancelarEntradaYaConsumidaFalla(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	w, p := h.warehouse(t, "A"), h.product(t, "P", 0)
	res := h.receive(t, w, p, 10)
	_, err := h.engine.ExecuteDelivery(ctx, inventory.DeliveryInput{
		WarehouseID: w, PerformedBy: "u1",
		Lines: []inventory.LineInput{{ProductID: p, Quantity: d(8)}},
	})
	require.NoError(t, err)

	_, err = h.engine.Cancel(ctx, res.Document.ID, "u1")
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)

	doc, _, err := h.query.Document(ctx, res.Document.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusExecuted, doc.Status)
	assert.True(t, h.balance(t, w, p).Equal(d(2)))
}

func TestEngine_CancelarTrasladoRevierteAmbasBodegas(t *testing.T) {
	h := newHarness(t)
	w, w2, p := h.warehouse(t, "A"), h.warehouse(t, "B"), h.product(t, "P", 0)
	h.receive(t, w, p, 10)
	res, err := h.engine.ExecuteTransfer(context.Background(), inventory.TransferInput{
		FromWarehouseID: w, ToWarehouseID: w2, PerformedBy: "u1",
		Lines: []inventory.LineInput{{ProductID: p, Quantity: d(4)}},
	})
	require.NoError(t, err)

	out, err := h.engine.Cancel(context.Background(), res.Document.ID, "u1")
	require.NoError(t, err)
	assert.Len(t, out.ReversalEntries, 2)
	assert.True(t, h.balance(t, w, p).Equal(d(10)))
	assert.True(t, h.balance(t, w2, p).IsZero())
}

func TestEngine_BorradorSinEfectoHastaEjecutar(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	w, p := h.warehouse(t, "A"), h.product(t, "P", 0)

	doc, err := h.engine.CreateDraft(ctx, inventory.DocumentInput{
		Type: entity.DocumentReceipt, WarehouseID: w, Party: "Proveedor S.A.", PerformedBy: "u1",
		Lines: []inventory.DocumentLineInput{{ProductID: p, Quantity: d(3)}},
	})
	require.NoError(t, err)
	assert.Equal(t, entity.StatusDraft, doc.Status)
	assert.Equal(t, 0, h.entryCount(t))
	assert.True(t, h.balance(t, w, p).IsZero())

	res, err := h.engine.Execute(ctx, doc.ID, "u2")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusExecuted, res.Document.Status)
	assert.Equal(t, "u2", res.Document.ExecutedBy)
	assert.Equal(t, "Proveedor S.A.", res.Document.Party)
	assert.True(t, h.balance(t, w, p).Equal(d(3)))

	_, err = h.engine.Execute(ctx, doc.ID, "u2")
	assert.ErrorIs(t, err, domain.ErrInvalidInput, "un documento ejecutado no se ejecuta dos veces")
}

func TestEngine_DescartarBorrador(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	w, p := h.warehouse(t, "A"), h.product(t, "P", 0)
	doc, err := h.engine.CreateDraft(ctx, inventory.DocumentInput{
		Type: entity.DocumentReceipt, WarehouseID: w, PerformedBy: "u1",
		Lines: []inventory.DocumentLineInput{{ProductID: p, Quantity: d(3)}},
	})
	require.NoError(t, err)

	out, err := h.engine.Discard(ctx, doc.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusCancelledAsDraft, out.Status)
	assert.Equal(t, 0, h.entryCount(t))

	_, err = h.engine.Execute(ctx, doc.ID, "u1")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = h.engine.Cancel(ctx, doc.ID, "u1")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestEngine_DescartarEjecutadoFalla(t *testing.T) {
	h := newHarness(t)
	w, p := h.warehouse(t, "A"), h.product(t, "P", 0)
	res := h.receive(t, w, p, 1)
	_, err := h.engine.Discard(context.Background(), res.Document.ID, "u1")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestEngine_DocumentoInexistente(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.Execute(context.Background(), "no-existe", "u1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = h.engine.Cancel(context.Background(), "no-existe", "u1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// Una salida rechazada deja el documento en borrador; puede ejecutarse al llegar stock.
func TestEngine_RechazoDejaBorradorReintentable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	w, p := h.warehouse(t, "A"), h.product(t, "P", 0)

	doc, err := h.engine.CreateDraft(ctx, inventory.DocumentInput{
		Type: entity.DocumentDelivery, WarehouseID: w, PerformedBy: "u1",
		Lines: []inventory.DocumentLineInput{{ProductID: p, Quantity: d(4)}},
	})
	require.NoError(t, err)
	_, err = h.engine.Execute(ctx, doc.ID, "u1")
	require.ErrorIs(t, err, domain.ErrInsufficientStock)

	h.receive(t, w, p, 4)
	_, err = h.engine.Execute(ctx, doc.ID, "u1")
	require.NoError(t, err)
	assert.True(t, h.balance(t, w, p).IsZero())
}

func TestEngine_AjusteConteoSinDiferencia(t *testing.T) {
	h := newHarness(t)
	w, p := h.warehouse(t, "A"), h.product(t, "P", 0)
	h.receive(t, w, p, 7)

	res, err := h.engine.ExecuteAdjustment(context.Background(), inventory.AdjustmentInput{
		WarehouseID: w, ProductID: p, Reason: "count", CountedQuantity: ptr(d(7)), PerformedBy: "u1",
	})
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
	assert.True(t, res.Entries[0].QuantityChange.IsZero())
	assert.True(t, res.Entries[0].ResultingBalance.Equal(d(7)))
	assert.True(t, h.balance(t, w, p).Equal(d(7)))
}

func TestEngine_AjusteRequiereUnSoloValor(t *testing.T) {
	h := newHarness(t)
	w, p := h.warehouse(t, "A"), h.product(t, "P", 0)
	_, err := h.engine.ExecuteAdjustment(context.Background(), inventory.AdjustmentInput{
		WarehouseID: w, ProductID: p, Reason: "count", PerformedBy: "u1",
		QuantityChange: ptr(d(1)), CountedQuantity: ptr(d(1)),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = h.engine.ExecuteAdjustment(context.Background(), inventory.AdjustmentInput{
		WarehouseID: w, ProductID: p, Reason: "damage", PerformedBy: "u1",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestEngine_AjusteNegativoSinSaldo(t *testing.T) {
	h := newHarness(t)
	w, p := h.warehouse(t, "A"), h.product(t, "P", 0)
	h.receive(t, w, p, 1)
	_, err := h.engine.ExecuteAdjustment(context.Background(), inventory.AdjustmentInput{
		WarehouseID: w, ProductID: p, Reason: "Damage", QuantityChange: ptr(d(-2)), PerformedBy: "u1",
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
}

func TestEngine_SalidasConcurrentesTerminanEnCero(t *testing.T) {
	h := newHarness(t)
	w, p := h.warehouse(t, "A"), h.product(t, "P", 0)
	const n = 25
	h.receive(t, w, p, n*2)

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.engine.ExecuteDelivery(context.Background(), inventory.DeliveryInput{
				WarehouseID: w, PerformedBy: "u1",
				Lines: []inventory.LineInput{{ProductID: p, Quantity: d(2)}},
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
	assert.True(t, h.balance(t, w, p).IsZero())
	assert.True(t, h.ledgerSum(t, w, p).IsZero())
	assert.Equal(t, 0, h.locker.Len(), "no quedan bloqueos retenidos")
}

// Con más pedidos que stock, exactamente los que caben se ejecutan y nunca hay saldo negativo.
func TestEngine_SalidasConcurrentesNoSobrevenden(t *testing.T) {
	h := newHarness(t)
	w, p := h.warehouse(t, "A"), h.product(t, "P", 0)
	h.receive(t, w, p, 10)

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok, rejected := 0, 0
	for i := 0; i < 15; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.engine.ExecuteDelivery(context.Background(), inventory.DeliveryInput{
				WarehouseID: w, PerformedBy: "u1",
				Lines: []inventory.LineInput{{ProductID: p, Quantity: d(1)}},
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, domain.ErrInsufficientStock):
				rejected++
			default:
				t.Errorf("error inesperado: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, ok)
	assert.Equal(t, 5, rejected)
	assert.True(t, h.balance(t, w, p).IsZero())
}

// Traslados cruzados A->B y B->A no se bloquean mutuamente.
func TestEngine_TrasladosCruzadosSinDeadlock(t *testing.T) {
	h := newHarness(t)
	a, b, p := h.warehouse(t, "A"), h.warehouse(t, "B"), h.product(t, "P", 0)
	h.receive(t, a, p, 100)
	h.receive(t, b, p, 100)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		from, to := a, b
		if i%2 == 1 {
			from, to = b, a
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.engine.ExecuteTransfer(context.Background(), inventory.TransferInput{
				FromWarehouseID: from, ToWarehouseID: to, PerformedBy: "u1",
				Lines: []inventory.LineInput{{ProductID: p, Quantity: d(1)}},
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.True(t, h.balance(t, a, p).Add(h.balance(t, b, p)).Equal(d(200)))
}

func TestEngine_FallaDeAppendNoDejaEscriturasParciales(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	w, p1, p2 := h.warehouse(t, "A"), h.product(t, "P1", 0), h.product(t, "P2", 0)

	doc, err := h.engine.CreateDraft(ctx, inventory.DocumentInput{
		Type: entity.DocumentReceipt, WarehouseID: w, PerformedBy: "u1",
		Lines: []inventory.DocumentLineInput{{ProductID: p1, Quantity: d(1)}, {ProductID: p2, Quantity: d(2)}},
	})
	require.NoError(t, err)

	h.store.FailAppendAfter(1)
	_, err = h.engine.Execute(ctx, doc.ID, "u1")
	require.ErrorIs(t, err, domain.ErrStorageUnavailable)

	assert.Equal(t, 0, h.entryCount(t))
	assert.True(t, h.balance(t, w, p1).IsZero())
	cur, _, err := h.query.Document(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusDraft, cur.Status)

	_, err = h.engine.Execute(ctx, doc.ID, "u1")
	require.NoError(t, err)
	assert.True(t, h.balance(t, w, p2).Equal(d(2)))
}

func TestEngine_FallaDeCommitNoDejaEscrituras(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	w, p := h.warehouse(t, "A"), h.product(t, "P", 0)
	h.receive(t, w, p, 3)
	doc, err := h.engine.CreateDraft(ctx, inventory.DocumentInput{
		Type: entity.DocumentDelivery, WarehouseID: w, PerformedBy: "u1",
		Lines: []inventory.DocumentLineInput{{ProductID: p, Quantity: d(3)}},
	})
	require.NoError(t, err)

	h.store.FailNextCommit()
	_, err = h.engine.Execute(ctx, doc.ID, "u1")
	require.ErrorIs(t, err, domain.ErrStorageUnavailable)
	assert.True(t, h.balance(t, w, p).Equal(d(3)))
	assert.Equal(t, 1, h.entryCount(t))
	cur, _, err := h.query.Document(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusDraft, cur.Status)
}

func TestEngine_TimeoutEsperandoBloqueo(t *testing.T) {
	h := newHarnessWith(t, inventory.EngineConfig{LockTimeout: 50 * time.Millisecond})
	w, p := h.warehouse(t, "A"), h.product(t, "P", 0)
	h.receive(t, w, p, 3)

	unlock, err := h.locker.Lock(context.Background(), inventory.BalanceLockKey(entity.BalanceKey{ProductID: p, WarehouseID: w}))
	require.NoError(t, err)

	_, err = h.engine.ExecuteDelivery(context.Background(), inventory.DeliveryInput{
		WarehouseID: w, PerformedBy: "u1",
		Lines: []inventory.LineInput{{ProductID: p, Quantity: d(1)}},
	})
	assert.ErrorIs(t, err, domain.ErrTimeout)
	unlock()

	assert.True(t, h.balance(t, w, p).Equal(d(3)))
	assert.Equal(t, 0, h.locker.Len())
}

func TestEngine_DeadlineDelLlamador(t *testing.T) {
	h := newHarness(t)
	w, p := h.warehouse(t, "A"), h.product(t, "P", 0)
	res := h.receive(t, w, p, 3)

	unlock, err := h.locker.Lock(context.Background(), inventory.DocumentLockKey(res.Document.ID))
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = h.engine.Cancel(ctx, res.Document.ID, "u1")
	assert.ErrorIs(t, err, domain.ErrTimeout)
}

func TestEngine_ClaveEnFallaRechazaEscrituras(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	w, p := h.warehouse(t, "A"), h.product(t, "P", 0)
	h.receive(t, w, p, 10)

	h.store.CorruptBalance(entity.BalanceKey{ProductID: p, WarehouseID: w}, d(99))
	faulted, err := h.projector.Verify(ctx)
	require.NoError(t, err)
	require.Len(t, faulted, 1)

	_, err = h.engine.ExecuteDelivery(ctx, inventory.DeliveryInput{
		WarehouseID: w, PerformedBy: "u1",
		Lines: []inventory.LineInput{{ProductID: p, Quantity: d(1)}},
	})
	var cf *domain.ConsistencyFaultError
	require.True(t, errors.As(err, &cf))

	list, err := h.query.CurrentStock(ctx, p, w)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Stale, "la lectura marca el saldo como no confiable")

	_, err = h.projector.Rebuild(ctx, p, w)
	require.NoError(t, err)
	assert.True(t, h.balance(t, w, p).Equal(d(10)))

	_, err = h.engine.ExecuteDelivery(ctx, inventory.DeliveryInput{
		WarehouseID: w, PerformedBy: "u1",
		Lines: []inventory.LineInput{{ProductID: p, Quantity: d(1)}},
	})
	require.NoError(t, err)
	assert.True(t, h.balance(t, w, p).Equal(d(9)))
}

func TestEngine_SaldoCorruptoHaciaAbajoSeDetectaBajoBloqueo(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	w, p := h.warehouse(t, "A"), h.product(t, "P", 0)
	h.receive(t, w, p, 10)
	key := entity.BalanceKey{ProductID: p, WarehouseID: w}

	// sin Verify previo: el mapa de fallas está vacío, como tras un reinicio
	h.store.CorruptBalance(key, d(0))
	require.False(t, h.projector.IsFaulted(key))

	_, err := h.engine.ExecuteDelivery(ctx, inventory.DeliveryInput{
		WarehouseID: w, PerformedBy: "u1",
		Lines: []inventory.LineInput{{ProductID: p, Quantity: d(5)}},
	})
	var cf *domain.ConsistencyFaultError
	require.True(t, errors.As(err, &cf), "se esperaba falla de consistencia, no %v", err)
	assert.False(t, errors.Is(err, domain.ErrInsufficientStock))
	assert.True(t, cf.Projected.IsZero())
	assert.True(t, cf.Ledger.Equal(d(10)))
	assert.True(t, h.projector.IsFaulted(key))
	assert.Equal(t, 1, h.entryCount(t), "el rechazo no escribe en el libro")

	// la lectura cae al libro
	list, err := h.query.CurrentStock(ctx, p, w)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Stale)
	assert.True(t, list[0].Quantity.Equal(d(10)))

	_, err = h.projector.Rebuild(ctx, p, w)
	require.NoError(t, err)
	_, err = h.engine.ExecuteDelivery(ctx, inventory.DeliveryInput{
		WarehouseID: w, PerformedBy: "u1",
		Lines: []inventory.LineInput{{ProductID: p, Quantity: d(5)}},
	})
	require.NoError(t, err)
	assert.True(t, h.balance(t, w, p).Equal(d(5)))
}

func TestEngine_RecoverCompletaAsientosFaltantes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	w, p1, p2 := h.warehouse(t, "A"), h.product(t, "P1", 0), h.product(t, "P2", 0)

	// documento confirmado como ejecutado pero con un solo asiento de dos en el libro
	now := time.Now()
	doc := &entity.MovementDocument{
		ID: "doc-gap", Type: entity.DocumentReceipt, Status: entity.StatusExecuted,
		WarehouseID: w, CreatedBy: "u1", ExecutedBy: "u1", CreatedAt: now, UpdatedAt: now, ExecutedAt: &now,
		Lines: []entity.DocumentLine{
			{LineNo: 1, ProductID: p1, Quantity: d(5), QuantityChange: d(5)},
			{LineNo: 2, ProductID: p2, Quantity: d(3), QuantityChange: d(3)},
		},
	}
	require.NoError(t, h.store.Documents().Create(ctx, doc))
	first, err := h.store.Ledger().Append(ctx, doc.PlannedEntries()[0])
	require.NoError(t, err)
	require.NoError(t, h.store.Stock().Upsert(ctx, &entity.StockBalance{
		ProductID: p1, WarehouseID: w, Quantity: d(5), LastEntryID: first.ID, UpdatedAt: now,
	}))

	n, err := h.engine.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, h.balance(t, w, p2).Equal(d(3)))

	// idempotente
	n, err = h.engine.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	faulted, err := h.projector.Verify(ctx)
	require.NoError(t, err)
	assert.Empty(t, faulted)
}

func TestEngine_RecoverCompletaReversionesDeCancelado(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	w, p := h.warehouse(t, "A"), h.product(t, "P", 0)
	res := h.receive(t, w, p, 8)

	// documento marcado como cancelado sin su reversión en el libro
	doc := res.Document
	require.NoError(t, doc.MarkCancelled("u2", time.Now()))
	require.NoError(t, h.store.Documents().Update(ctx, doc))

	n, err := h.engine.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, h.balance(t, w, p).IsZero())

	_, entries, err := h.query.Document(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, entries[1].ReferenceType.IsReversal())
	assert.Equal(t, "u2", entries[1].PerformedBy)
}

func TestEngine_RebuildCoincideConLibro(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a, b := h.warehouse(t, "A"), h.warehouse(t, "B")
	p1, p2 := h.product(t, "P1", 0), h.product(t, "P2", 0)
	h.receive(t, a, p1, 10)
	h.receive(t, a, p2, 4)
	_, err := h.engine.ExecuteTransfer(ctx, inventory.TransferInput{
		FromWarehouseID: a, ToWarehouseID: b, PerformedBy: "u1",
		Lines: []inventory.LineInput{{ProductID: p1, Quantity: d(3)}, {ProductID: p2, Quantity: d(4)}},
	})
	require.NoError(t, err)

	before, err := h.query.CurrentStock(ctx, "", "")
	require.NoError(t, err)
	rebuilt, err := h.projector.Rebuild(ctx, "", "")
	require.NoError(t, err)
	require.Len(t, rebuilt, len(before))
	for i := range before {
		assert.Equal(t, before[i].Key(), rebuilt[i].Key())
		assert.True(t, before[i].Quantity.Equal(rebuilt[i].Quantity), "clave %s", before[i].Key())
		assert.Equal(t, before[i].LastEntryID, rebuilt[i].LastEntryID)
		assert.True(t, h.ledgerSum(t, before[i].WarehouseID, before[i].ProductID).Equal(before[i].Quantity))
	}
}
