// Package bootstrap arma el motor de movimientos a partir de la configuración.
// Lo comparten el servidor HTTP y la CLI de operación.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jhoicas/stock-ledger/internal/application/inventory"
	"github.com/jhoicas/stock-ledger/internal/application/usecase"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
	"github.com/jhoicas/stock-ledger/internal/infrastructure/memory"
	"github.com/jhoicas/stock-ledger/internal/infrastructure/postgres"
	"github.com/jhoicas/stock-ledger/pkg/config"
	"github.com/jhoicas/stock-ledger/pkg/logger"
	"github.com/jhoicas/stock-ledger/pkg/metrics"
)

// Ledger servicios construidos sobre el almacén elegido en LEDGER_STORE.
type Ledger struct {
	Engine        *inventory.MovementEngine
	Query         *inventory.QueryService
	Projector     *inventory.BalanceProjector
	Replenishment *inventory.ReplenishmentUseCase
	WarehouseUC   *usecase.WarehouseUseCase
	ProductUC     *usecase.ProductUseCase
	Metrics       *metrics.Metrics

	close func()
}

// Close libera el pool de conexiones, si lo hay.
func (l *Ledger) Close() {
	if l.close != nil {
		l.close()
	}
}

type stores struct {
	tx         inventory.TxRunner
	ledger     repository.LedgerRepository
	stock      repository.StockRepository
	docs       repository.DocumentRepository
	warehouses repository.WarehouseRepository
	products   repository.ProductRepository
	close      func()
}

// NewLedger conecta el almacén y construye motor, consultas y casos de uso.
// reg puede ser nil (sin métricas).
func NewLedger(ctx context.Context, cfg *config.Config, log *logger.Logger, reg prometheus.Registerer) (*Ledger, error) {
	st, err := openStores(ctx, cfg)
	if err != nil {
		return nil, err
	}
	var m *metrics.Metrics
	if reg != nil {
		m = metrics.New(reg)
	}

	locker := inventory.NewKeyedLocker()
	projector := inventory.NewBalanceProjector(st.tx, st.ledger, st.stock, locker, log, m)
	engine := inventory.NewMovementEngine(
		st.tx, st.docs, st.ledger, st.warehouses, st.products,
		projector, locker, log, m,
		inventory.EngineConfig{
			LockTimeout:       cfg.Ledger.LockTimeout,
			RecoverMaxElapsed: cfg.Ledger.RecoverMaxElapsed,
		},
	)
	return &Ledger{
		Engine:        engine,
		Query:         inventory.NewQueryService(st.stock, st.ledger, st.docs, projector, cfg.Ledger.HistoryPageSize),
		Projector:     projector,
		Replenishment: inventory.NewReplenishmentUseCase(st.stock, st.ledger),
		WarehouseUC:   usecase.NewWarehouseUseCase(st.warehouses),
		ProductUC:     usecase.NewProductUseCase(st.products),
		Metrics:       m,
		close:         st.close,
	}, nil
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	switch cfg.Ledger.Store {
	case config.StoreMemory:
		s := memory.NewStore()
		return &stores{
			tx:         s,
			ledger:     s.Ledger(),
			stock:      s.Stock(),
			docs:       s.Documents(),
			warehouses: s.Warehouses(),
			products:   s.Products(),
		}, nil
	case config.StorePostgres:
		pool, err := postgres.NewPool(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("conexión a PostgreSQL: %w", err)
		}
		return &stores{
			tx:         postgres.NewTxRunner(pool),
			ledger:     postgres.NewLedgerRepository(pool),
			stock:      postgres.NewStockRepository(pool),
			docs:       postgres.NewDocumentRepository(pool),
			warehouses: postgres.NewWarehouseRepository(pool),
			products:   postgres.NewProductRepository(pool),
			close:      pool.Close,
		}, nil
	}
	return nil, fmt.Errorf("almacén desconocido %q", cfg.Ledger.Store)
}
