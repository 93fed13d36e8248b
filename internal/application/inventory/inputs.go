package inventory

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// LineInput renglón de entrada, salida o traslado.
type LineInput struct {
	ProductID  string
	Quantity   decimal.Decimal
	ExpiryDate *time.Time
}

// ReceiptInput entrada de mercancía a una bodega.
type ReceiptInput struct {
	WarehouseID string
	Supplier    string
	Notes       string
	PerformedBy string
	Lines       []LineInput
}

// DeliveryInput salida de mercancía de una bodega.
type DeliveryInput struct {
	WarehouseID string
	Customer    string
	Notes       string
	PerformedBy string
	Lines       []LineInput
}

// TransferInput traslado entre dos bodegas distintas.
type TransferInput struct {
	FromWarehouseID string
	ToWarehouseID   string
	Notes           string
	PerformedBy     string
	Lines           []LineInput
}

// AdjustmentInput ajuste de un producto en una bodega. Exactamente uno de
// QuantityChange o CountedQuantity; CountedQuantity sólo con motivo count.
type AdjustmentInput struct {
	WarehouseID     string
	ProductID       string
	Reason          string
	QuantityChange  *decimal.Decimal
	CountedQuantity *decimal.Decimal
	Notes           string
	PerformedBy     string
}

// DocumentLineInput renglón genérico para CreateDraft.
type DocumentLineInput struct {
	ProductID       string
	Quantity        decimal.Decimal
	QuantityChange  *decimal.Decimal
	CountedQuantity *decimal.Decimal
	ExpiryDate      *time.Time
}

// DocumentInput crea un documento en borrador de cualquier tipo.
type DocumentInput struct {
	Type            entity.DocumentType
	WarehouseID     string
	FromWarehouseID string
	ToWarehouseID   string
	Party           string
	Reason          string
	Notes           string
	PerformedBy     string
	Lines           []DocumentLineInput
}

// MovementResult documento ejecutado y los asientos que produjo, en orden de escritura.
type MovementResult struct {
	Document *entity.MovementDocument
	Entries  []entity.LedgerEntry
}

// CancelResult documento cancelado y sus asientos de reversión.
type CancelResult struct {
	Document        *entity.MovementDocument
	ReversalEntries []entity.LedgerEntry
}

func linesFrom(in []LineInput) []DocumentLineInput {
	out := make([]DocumentLineInput, len(in))
	for i, l := range in {
		out[i] = DocumentLineInput{ProductID: l.ProductID, Quantity: l.Quantity, ExpiryDate: l.ExpiryDate}
	}
	return out
}
