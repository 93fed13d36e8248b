package bootstrap_test

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/stock-ledger/internal/application/dto"
	"github.com/jhoicas/stock-ledger/internal/application/inventory"
	"github.com/jhoicas/stock-ledger/internal/bootstrap"
	"github.com/jhoicas/stock-ledger/pkg/config"
	"github.com/jhoicas/stock-ledger/pkg/logger"
)

func memoryConfig() *config.Config {
	return &config.Config{Ledger: config.LedgerConfig{Store: config.StoreMemory}}
}

func TestNewLedger_MemoriaEjecutaEntrada(t *testing.T) {
	ctx := context.Background()
	l, err := bootstrap.NewLedger(ctx, memoryConfig(), logger.Nop(), prometheus.NewRegistry())
	require.NoError(t, err)
	defer l.Close()

	wh, err := l.WarehouseUC.Create(ctx, dto.CreateWarehouseRequest{Code: "W", Name: "Principal"})
	require.NoError(t, err)
	p, err := l.ProductUC.Create(ctx, dto.CreateProductRequest{SKU: "SKU-X", Name: "Producto X"})
	require.NoError(t, err)

	_, err = l.Engine.ExecuteReceipt(ctx, inventory.ReceiptInput{
		WarehouseID: wh.ID,
		PerformedBy: "u1",
		Lines:       []inventory.LineInput{{ProductID: p.ID, Quantity: decimal.NewFromInt(7)}},
	})
	require.NoError(t, err)

	list, err := l.Query.CurrentStock(ctx, p.ID, wh.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Quantity.Equal(decimal.NewFromInt(7)))
}

func TestNewLedger_SinRegistroNoPublicaMetricas(t *testing.T) {
	l, err := bootstrap.NewLedger(context.Background(), memoryConfig(), logger.Nop(), nil)
	require.NoError(t, err)
	assert.Nil(t, l.Metrics)
	l.Close()
}

func TestNewLedger_AlmacenDesconocido(t *testing.T) {
	cfg := &config.Config{Ledger: config.LedgerConfig{Store: "mongo"}}
	_, err := bootstrap.NewLedger(context.Background(), cfg, logger.Nop(), nil)
	assert.Error(t, err)
}
