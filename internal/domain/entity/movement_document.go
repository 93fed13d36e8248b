package entity

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"

	"github.com/jhoicas/stock-ledger/internal/domain"
)

// DocumentType tipo de documento de movimiento.
type DocumentType string

const (
	DocumentReceipt    DocumentType = "RECEIPT"    // entrada
	DocumentDelivery   DocumentType = "DELIVERY"   // salida
	DocumentTransfer   DocumentType = "TRANSFER"   // traslado entre bodegas
	DocumentAdjustment DocumentType = "ADJUSTMENT" // ajuste manual
)

// ReferenceType devuelve el tipo de referencia con que el documento aparece en el libro.
func (t DocumentType) ReferenceType() ReferenceType {
	return ReferenceType(t)
}

// Valid indica si el tipo es conocido.
func (t DocumentType) Valid() bool {
	switch t {
	case DocumentReceipt, DocumentDelivery, DocumentTransfer, DocumentAdjustment:
		return true
	}
	return false
}

// DocumentStatus es el conjunto cerrado de estados del ciclo de vida de un documento.
type DocumentStatus string

const (
	StatusDraft                   DocumentStatus = "DRAFT"
	StatusExecuted                DocumentStatus = "EXECUTED"
	StatusCancelledAsDraft        DocumentStatus = "CANCELLED_AS_DRAFT"
	StatusCancelledAfterExecution DocumentStatus = "CANCELLED_AFTER_EXECUTION"
)

// ParseDocumentStatus convierte el valor persistido; cualquier otro texto es un error.
func ParseDocumentStatus(s string) (DocumentStatus, error) {
	switch st := DocumentStatus(s); st {
	case StatusDraft, StatusExecuted, StatusCancelledAsDraft, StatusCancelledAfterExecution:
		return st, nil
	}
	return "", fmt.Errorf("estado de documento desconocido %q", s)
}

// CanTransitionTo indica si la transición es legal:
// DRAFT -> EXECUTED | CANCELLED_AS_DRAFT, EXECUTED -> CANCELLED_AFTER_EXECUTION.
func (s DocumentStatus) CanTransitionTo(next DocumentStatus) bool {
	switch s {
	case StatusDraft:
		return next == StatusExecuted || next == StatusCancelledAsDraft
	case StatusExecuted:
		return next == StatusCancelledAfterExecution
	}
	return false
}

// Terminal indica que no hay transiciones posibles desde el estado.
func (s DocumentStatus) Terminal() bool {
	return s == StatusCancelledAsDraft || s == StatusCancelledAfterExecution
}

// AdjustmentReason motivo de un ajuste.
type AdjustmentReason string

const (
	ReasonDamage     AdjustmentReason = "damage"
	ReasonExpiry     AdjustmentReason = "expiry"
	ReasonTheft      AdjustmentReason = "theft"
	ReasonCorrection AdjustmentReason = "correction"
	ReasonCount      AdjustmentReason = "count" // conteo físico (reconciliación)
)

var reasonFolder = cases.Fold()

// ParseAdjustmentReason normaliza (case folding) y valida el motivo.
func ParseAdjustmentReason(s string) (AdjustmentReason, bool) {
	switch r := AdjustmentReason(reasonFolder.String(s)); r {
	case ReasonDamage, ReasonExpiry, ReasonTheft, ReasonCorrection, ReasonCount:
		return r, true
	}
	return "", false
}

// DocumentLine renglón de un documento. QuantityChange se resuelve al ejecutar
// (para ajustes de conteo depende del saldo leído bajo bloqueo).
type DocumentLine struct {
	LineNo          int
	ProductID       string
	Quantity        decimal.Decimal
	CountedQuantity *decimal.Decimal
	QuantityChange  decimal.Decimal
	ExpiryDate      *time.Time
}

// MovementDocument documento de movimiento (entrada, salida, traslado o ajuste).
// Es dueño exclusivo de sus renglones; el libro sólo guarda una referencia débil a su ID.
type MovementDocument struct {
	ID              string
	Type            DocumentType
	Status          DocumentStatus
	WarehouseID     string // entrada, salida, ajuste
	FromWarehouseID string // traslado
	ToWarehouseID   string // traslado
	Party           string // proveedor o cliente
	Reason          AdjustmentReason
	Notes           string
	CreatedBy       string
	ExecutedBy      string
	CancelledBy     string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ExecutedAt      *time.Time
	CancelledAt     *time.Time
	Lines           []DocumentLine
}

func (d *MovementDocument) transition(next DocumentStatus, at time.Time) error {
	if !d.Status.CanTransitionTo(next) {
		return domain.Invalid("status", fmt.Sprintf("transición %s -> %s no permitida", d.Status, next))
	}
	d.Status = next
	d.UpdatedAt = at
	return nil
}

// MarkExecuted DRAFT -> EXECUTED.
func (d *MovementDocument) MarkExecuted(by string, at time.Time) error {
	if err := d.transition(StatusExecuted, at); err != nil {
		return err
	}
	d.ExecutedBy = by
	d.ExecutedAt = &at
	return nil
}

// MarkCancelled EXECUTED -> CANCELLED_AFTER_EXECUTION.
func (d *MovementDocument) MarkCancelled(by string, at time.Time) error {
	if err := d.transition(StatusCancelledAfterExecution, at); err != nil {
		return err
	}
	d.CancelledBy = by
	d.CancelledAt = &at
	return nil
}

// MarkDiscarded DRAFT -> CANCELLED_AS_DRAFT (sin efecto en el libro).
func (d *MovementDocument) MarkDiscarded(by string, at time.Time) error {
	if err := d.transition(StatusCancelledAsDraft, at); err != nil {
		return err
	}
	d.CancelledBy = by
	d.CancelledAt = &at
	return nil
}

// DeclaredEntries número de asientos que produce la ejecución: uno por renglón, dos en traslados.
func (d *MovementDocument) DeclaredEntries() int {
	if d.Type == DocumentTransfer {
		return 2 * len(d.Lines)
	}
	return len(d.Lines)
}

// Keys devuelve los pares (producto, bodega) afectados, sin duplicados y en orden de bloqueo.
func (d *MovementDocument) Keys() []BalanceKey {
	seen := make(map[BalanceKey]struct{}, len(d.Lines)*2)
	keys := make([]BalanceKey, 0, len(d.Lines)*2)
	add := func(k BalanceKey) {
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	for _, l := range d.Lines {
		if d.Type == DocumentTransfer {
			add(BalanceKey{ProductID: l.ProductID, WarehouseID: d.FromWarehouseID})
			add(BalanceKey{ProductID: l.ProductID, WarehouseID: d.ToWarehouseID})
			continue
		}
		add(BalanceKey{ProductID: l.ProductID, WarehouseID: d.WarehouseID})
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}

// PlannedEntries devuelve, en orden de escritura, los asientos que produce la ejecución.
// Requiere que QuantityChange esté resuelto en cada renglón.
func (d *MovementDocument) PlannedEntries() []LedgerEntryDraft {
	ref := d.Type.ReferenceType()
	out := make([]LedgerEntryDraft, 0, d.DeclaredEntries())
	for _, l := range d.Lines {
		base := LedgerEntryDraft{
			ProductID:     l.ProductID,
			ReferenceType: ref,
			ReferenceID:   d.ID,
			Reason:        string(d.Reason),
			PerformedBy:   d.ExecutedBy,
			Notes:         d.Notes,
		}
		if d.Type == DocumentTransfer {
			src := base
			src.WarehouseID = d.FromWarehouseID
			src.QuantityChange = l.Quantity.Neg()
			dst := base
			dst.WarehouseID = d.ToWarehouseID
			dst.QuantityChange = l.Quantity
			out = append(out, src, dst)
			continue
		}
		base.WarehouseID = d.WarehouseID
		base.QuantityChange = l.QuantityChange
		out = append(out, base)
	}
	return out
}
