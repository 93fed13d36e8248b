package repository

import (
	"context"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// StockRepository define el puerto de la proyección de saldos (producto, bodega).
// Usado dentro de transacciones para garantizar consistencia con el libro.
type StockRepository interface {
	// Get devuelve el saldo; si no existe fila, saldo cero.
	Get(ctx context.Context, productID, warehouseID string) (*entity.StockBalance, error)
	// GetForUpdate bloquea la fila (SELECT FOR UPDATE), creándola en cero si no existe.
	GetForUpdate(ctx context.Context, productID, warehouseID string) (*entity.StockBalance, error)
	Upsert(ctx context.Context, balance *entity.StockBalance) error
	// List filtra por producto y/o bodega (vacío = todos).
	List(ctx context.Context, productID, warehouseID string) ([]entity.StockBalance, error)
	// ListLowStock devuelve saldos por debajo del punto de reorden del producto.
	ListLowStock(ctx context.Context, warehouseID string) ([]entity.LowStockItem, error)
}
