package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// BalanceKey identifica un saldo: producto en una bodega. Es la unidad de exclusión mutua.
type BalanceKey struct {
	ProductID   string
	WarehouseID string
}

// String devuelve "warehouse/product", usado como clave de bloqueo y en logs.
func (k BalanceKey) String() string {
	return k.WarehouseID + "/" + k.ProductID
}

// Less define el orden total de adquisición de bloqueos: (warehouse_id, product_id).
func (k BalanceKey) Less(o BalanceKey) bool {
	if k.WarehouseID != o.WarehouseID {
		return k.WarehouseID < o.WarehouseID
	}
	return k.ProductID < o.ProductID
}

// StockBalance es el saldo proyectado (tabla materializada) de un producto en una bodega.
// Quantity siempre debe ser igual a la suma de los cambios del libro para la clave.
type StockBalance struct {
	ProductID   string
	WarehouseID string
	Quantity    decimal.Decimal
	LastEntryID int64
	UpdatedAt   time.Time
	Stale       bool // sólo lectura: la clave está en falla de consistencia
}

// Key devuelve la clave del saldo.
func (s StockBalance) Key() BalanceKey {
	return BalanceKey{ProductID: s.ProductID, WarehouseID: s.WarehouseID}
}

// LowStockItem es un saldo por debajo del punto de reorden del producto.
type LowStockItem struct {
	ProductID    string
	SKU          string
	ProductName  string
	WarehouseID  string
	Quantity     decimal.Decimal
	ReorderPoint decimal.Decimal
}
