package entity

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ReferenceType identifica el tipo de documento que originó un asiento del libro.
type ReferenceType string

// Tipos de referencia. Los de reversión marcan asientos compensatorios de una cancelación.
const (
	ReferenceReceipt    ReferenceType = "RECEIPT"
	ReferenceDelivery   ReferenceType = "DELIVERY"
	ReferenceTransfer   ReferenceType = "TRANSFER"
	ReferenceAdjustment ReferenceType = "ADJUSTMENT"

	reversalSuffix = "_REVERSAL"
)

// Reversal devuelve el tipo de reversión correspondiente (RECEIPT -> RECEIPT_REVERSAL).
func (t ReferenceType) Reversal() ReferenceType {
	if t.IsReversal() {
		return t
	}
	return t + reversalSuffix
}

// IsReversal indica si el tipo corresponde a un asiento compensatorio.
func (t ReferenceType) IsReversal() bool {
	return strings.HasSuffix(string(t), reversalSuffix)
}

// Base devuelve el tipo original sin el sufijo de reversión.
func (t ReferenceType) Base() ReferenceType {
	return ReferenceType(strings.TrimSuffix(string(t), reversalSuffix))
}

// Valid indica si el tipo (original o de reversión) es conocido.
func (t ReferenceType) Valid() bool {
	switch t.Base() {
	case ReferenceReceipt, ReferenceDelivery, ReferenceTransfer, ReferenceAdjustment:
		return true
	}
	return false
}

// LedgerEntry es un hecho inmutable: un cambio de cantidad para un par (producto, bodega).
// Nunca se actualiza ni se elimina; las correcciones son asientos nuevos.
type LedgerEntry struct {
	ID               int64
	ProductID        string
	WarehouseID      string
	ReferenceType    ReferenceType
	ReferenceID      string
	ReversesEntryID  *int64
	QuantityChange   decimal.Decimal
	ResultingBalance decimal.Decimal // saldo del par después de este asiento
	Reason           string
	PerformedBy      string
	Notes            string
	CreatedAt        time.Time
}

// Key devuelve la clave de saldo afectada por el asiento.
func (e LedgerEntry) Key() BalanceKey {
	return BalanceKey{ProductID: e.ProductID, WarehouseID: e.WarehouseID}
}

// LedgerEntryDraft es la entrada para Append. ID, CreatedAt y ResultingBalance los asigna el almacén.
type LedgerEntryDraft struct {
	ProductID       string
	WarehouseID     string
	ReferenceType   ReferenceType
	ReferenceID     string
	ReversesEntryID *int64
	QuantityChange  decimal.Decimal
	Reason          string
	PerformedBy     string
	Notes           string
}

// Key devuelve la clave de saldo del borrador.
func (d LedgerEntryDraft) Key() BalanceKey {
	return BalanceKey{ProductID: d.ProductID, WarehouseID: d.WarehouseID}
}

// LedgerFilter filtra lecturas del libro. AfterID actúa como cursor (orden ascendente por ID).
type LedgerFilter struct {
	ProductID     string
	WarehouseID   string
	ReferenceType ReferenceType
	ReferenceID   string
	From          *time.Time
	To            *time.Time
	AfterID       int64
	Limit         int
}

// Matches aplica el filtro en memoria (sin considerar AfterID ni Limit).
func (f LedgerFilter) Matches(e LedgerEntry) bool {
	if f.ProductID != "" && e.ProductID != f.ProductID {
		return false
	}
	if f.WarehouseID != "" && e.WarehouseID != f.WarehouseID {
		return false
	}
	if f.ReferenceType != "" && e.ReferenceType != f.ReferenceType {
		return false
	}
	if f.ReferenceID != "" && e.ReferenceID != f.ReferenceID {
		return false
	}
	if f.From != nil && e.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && e.CreatedAt.After(*f.To) {
		return false
	}
	return true
}
