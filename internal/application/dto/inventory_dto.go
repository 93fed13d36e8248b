package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// MovementLineRequest renglón de entrada, salida o traslado.
type MovementLineRequest struct {
	ProductID  string          `json:"product_id"`
	Quantity   decimal.Decimal `json:"quantity"`
	ExpiryDate *time.Time      `json:"expiry_date,omitempty"`
}

// ReceiptRequest body para POST /api/movements/receipts.
type ReceiptRequest struct {
	WarehouseID string                `json:"warehouse_id"`
	Supplier    string                `json:"supplier,omitempty"`
	Notes       string                `json:"notes,omitempty"`
	Lines       []MovementLineRequest `json:"lines"`
}

// DeliveryRequest body para POST /api/movements/deliveries.
type DeliveryRequest struct {
	WarehouseID string                `json:"warehouse_id"`
	Customer    string                `json:"customer,omitempty"`
	Notes       string                `json:"notes,omitempty"`
	Lines       []MovementLineRequest `json:"lines"`
}

// TransferRequest body para POST /api/movements/transfers.
type TransferRequest struct {
	FromWarehouseID string                `json:"from_warehouse_id"`
	ToWarehouseID   string                `json:"to_warehouse_id"`
	Notes           string                `json:"notes,omitempty"`
	Lines           []MovementLineRequest `json:"lines"`
}

// AdjustmentRequest body para POST /api/movements/adjustments.
// Exactamente uno de quantity_change o counted_quantity (este último sólo con reason=count).
type AdjustmentRequest struct {
	WarehouseID     string           `json:"warehouse_id"`
	ProductID       string           `json:"product_id"`
	Reason          string           `json:"reason"`
	QuantityChange  *decimal.Decimal `json:"quantity_change,omitempty"`
	CountedQuantity *decimal.Decimal `json:"counted_quantity,omitempty"`
	Notes           string           `json:"notes,omitempty"`
}

// DocumentLineRequest renglón genérico de un borrador.
type DocumentLineRequest struct {
	ProductID       string           `json:"product_id"`
	Quantity        decimal.Decimal  `json:"quantity"`
	QuantityChange  *decimal.Decimal `json:"quantity_change,omitempty"`
	CountedQuantity *decimal.Decimal `json:"counted_quantity,omitempty"`
	ExpiryDate      *time.Time       `json:"expiry_date,omitempty"`
}

// CreateDocumentRequest body para POST /api/documents (crea un borrador).
type CreateDocumentRequest struct {
	Type            string                `json:"type"`
	WarehouseID     string                `json:"warehouse_id,omitempty"`
	FromWarehouseID string                `json:"from_warehouse_id,omitempty"`
	ToWarehouseID   string                `json:"to_warehouse_id,omitempty"`
	Party           string                `json:"party,omitempty"`
	Reason          string                `json:"reason,omitempty"`
	Notes           string                `json:"notes,omitempty"`
	Lines           []DocumentLineRequest `json:"lines"`
}

// DocumentLineResponse renglón de un documento.
type DocumentLineResponse struct {
	LineNo          int              `json:"line_no"`
	ProductID       string           `json:"product_id"`
	Quantity        decimal.Decimal  `json:"quantity"`
	CountedQuantity *decimal.Decimal `json:"counted_quantity,omitempty"`
	QuantityChange  decimal.Decimal  `json:"quantity_change"`
	ExpiryDate      *time.Time       `json:"expiry_date,omitempty"`
}

// DocumentResponse salida de un documento de movimiento.
type DocumentResponse struct {
	ID              string                 `json:"id"`
	Type            string                 `json:"type"`
	Status          string                 `json:"status"`
	WarehouseID     string                 `json:"warehouse_id,omitempty"`
	FromWarehouseID string                 `json:"from_warehouse_id,omitempty"`
	ToWarehouseID   string                 `json:"to_warehouse_id,omitempty"`
	Party           string                 `json:"party,omitempty"`
	Reason          string                 `json:"reason,omitempty"`
	Notes           string                 `json:"notes,omitempty"`
	CreatedBy       string                 `json:"created_by"`
	ExecutedBy      string                 `json:"executed_by,omitempty"`
	CancelledBy     string                 `json:"cancelled_by,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	ExecutedAt      *time.Time             `json:"executed_at,omitempty"`
	CancelledAt     *time.Time             `json:"cancelled_at,omitempty"`
	Lines           []DocumentLineResponse `json:"lines"`
}

// LedgerEntryResponse asiento del libro.
type LedgerEntryResponse struct {
	ID               int64           `json:"id"`
	ProductID        string          `json:"product_id"`
	WarehouseID      string          `json:"warehouse_id"`
	ReferenceType    string          `json:"reference_type"`
	ReferenceID      string          `json:"reference_id"`
	ReversesEntryID  *int64          `json:"reverses_entry_id,omitempty"`
	QuantityChange   decimal.Decimal `json:"quantity_change"`
	ResultingBalance decimal.Decimal `json:"resulting_balance"`
	Reason           string          `json:"reason,omitempty"`
	PerformedBy      string          `json:"performed_by"`
	Notes            string          `json:"notes,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// MovementResponse documento ejecutado o cancelado y los asientos que produjo.
type MovementResponse struct {
	Document DocumentResponse      `json:"document"`
	Entries  []LedgerEntryResponse `json:"entries"`
}

// StockBalanceResponse saldo de un producto en una bodega.
type StockBalanceResponse struct {
	ProductID   string          `json:"product_id"`
	WarehouseID string          `json:"warehouse_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	LastEntryID int64           `json:"last_entry_id"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Stale       bool            `json:"stale,omitempty"`
}

// LowStockResponse saldo por debajo del punto de reorden.
type LowStockResponse struct {
	ProductID    string          `json:"product_id"`
	SKU          string          `json:"sku"`
	ProductName  string          `json:"product_name"`
	WarehouseID  string          `json:"warehouse_id"`
	Quantity     decimal.Decimal `json:"quantity"`
	ReorderPoint decimal.Decimal `json:"reorder_point"`
}

// LedgerPageResponse página del historial; next_after_id es 0 cuando no hay más.
type LedgerPageResponse struct {
	Items       []LedgerEntryResponse `json:"items"`
	NextAfterID int64                 `json:"next_after_id"`
}

// ReplenishmentSuggestionDTO sugerencia de reposición para un saldo bajo su punto de reorden.
type ReplenishmentSuggestionDTO struct {
	ProductID            string          `json:"product_id"`
	SKU                  string          `json:"sku"`
	ProductName          string          `json:"product_name"`
	WarehouseID          string          `json:"warehouse_id"`
	CurrentStock         decimal.Decimal `json:"current_stock"`
	ReorderPoint         decimal.Decimal `json:"reorder_point"`
	IdealStock           decimal.Decimal `json:"ideal_stock"`         // ReorderPoint * 1.5
	SuggestedOrderQty    decimal.Decimal `json:"suggested_order_qty"` // IdealStock - CurrentStock
	UnitsDeliveredLast90 decimal.Decimal `json:"units_delivered_last_90d"`
	Priority             int             `json:"priority"` // 1 = más urgente
}

// RebuildResponse resultado de una reconstrucción de la proyección.
type RebuildResponse struct {
	Keys     int                    `json:"keys"`
	Balances []StockBalanceResponse `json:"balances"`
}

// BalanceKeyResponse par (producto, bodega).
type BalanceKeyResponse struct {
	ProductID   string `json:"product_id"`
	WarehouseID string `json:"warehouse_id"`
}

// VerifyResponse claves cuyo saldo no coincide con el libro.
type VerifyResponse struct {
	Faulted []BalanceKeyResponse `json:"faulted"`
}
