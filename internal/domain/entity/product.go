package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product representa un producto o SKU. El stock se maneja por bodega en el libro.
type Product struct {
	ID           string
	SKU          string // código único
	Name         string
	UnitMeasure  string
	ReorderPoint decimal.Decimal // umbral de alerta de stock bajo
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
