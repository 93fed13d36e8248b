package inventory_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/stock-ledger/internal/application/inventory"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/infrastructure/memory"
	"github.com/jhoicas/stock-ledger/pkg/logger"
	"github.com/jhoicas/stock-ledger/pkg/metrics"
)

// harness motor completo sobre el almacén en memoria.
type harness struct {
	store     *memory.Store
	locker    *inventory.KeyedLocker
	projector *inventory.BalanceProjector
	engine    *inventory.MovementEngine
	query     *inventory.QueryService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWith(t, inventory.EngineConfig{LockTimeout: 5 * time.Second, RecoverMaxElapsed: time.Second})
}

func newHarnessWith(t *testing.T, cfg inventory.EngineConfig) *harness {
	t.Helper()
	store := memory.NewStore()
	log := logger.Nop()
	m := metrics.New(prometheus.NewRegistry())
	locker := inventory.NewKeyedLocker()
	projector := inventory.NewBalanceProjector(store, store.Ledger(), store.Stock(), locker, log, m)
	engine := inventory.NewMovementEngine(store, store.Documents(), store.Ledger(), store.Warehouses(), store.Products(), projector, locker, log, m, cfg)
	return &harness{
		store:     store,
		locker:    locker,
		projector: projector,
		engine:    engine,
		query:     inventory.NewQueryService(store.Stock(), store.Ledger(), store.Documents(), projector, 0),
	}
}

func (h *harness) warehouse(t *testing.T, id string) string {
	t.Helper()
	require.NoError(t, h.store.Warehouses().Create(context.Background(), &entity.Warehouse{ID: id, Code: id, Name: "Bodega " + id}))
	return id
}

func (h *harness) product(t *testing.T, id string, reorder int64) string {
	t.Helper()
	require.NoError(t, h.store.Products().Create(context.Background(), &entity.Product{
		ID: id, SKU: id, Name: "Producto " + id, UnitMeasure: "94", ReorderPoint: decimal.NewFromInt(reorder),
	}))
	return id
}

func (h *harness) receive(t *testing.T, wh, prod string, qty int64) *inventory.MovementResult {
	t.Helper()
	res, err := h.engine.ExecuteReceipt(context.Background(), inventory.ReceiptInput{
		WarehouseID: wh,
		PerformedBy: "u1",
		Lines:       []inventory.LineInput{{ProductID: prod, Quantity: decimal.NewFromInt(qty)}},
	})
	require.NoError(t, err)
	return res
}

// balance saldo materializado (cero si la clave no existe).
func (h *harness) balance(t *testing.T, wh, prod string) decimal.Decimal {
	t.Helper()
	list, err := h.query.CurrentStock(context.Background(), prod, wh)
	require.NoError(t, err)
	if len(list) == 0 {
		return decimal.Zero
	}
	require.Len(t, list, 1)
	return list[0].Quantity
}

// ledgerSum suma de quantity_change del libro para la clave.
func (h *harness) ledgerSum(t *testing.T, wh, prod string) decimal.Decimal {
	t.Helper()
	sum := decimal.Zero
	for e, err := range h.query.History(context.Background(), entity.LedgerFilter{ProductID: prod, WarehouseID: wh}) {
		require.NoError(t, err)
		sum = sum.Add(e.QuantityChange)
	}
	return sum
}

func (h *harness) entryCount(t *testing.T) int {
	t.Helper()
	n := 0
	for _, err := range h.query.History(context.Background(), entity.LedgerFilter{}) {
		require.NoError(t, err)
		n++
	}
	return n
}

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func ptr(v decimal.Decimal) *decimal.Decimal { return &v }

func nopLog() *logger.Logger { return logger.Nop() }
