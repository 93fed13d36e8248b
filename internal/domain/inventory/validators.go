// Package inventory contiene las reglas puras de validación de movimientos (sin efectos laterales).
// Las reglas que dependen del saldo reciben el saldo leído bajo bloqueo por el motor.
package inventory

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// QuantityScale número máximo de decimales admitidos en cantidades (NUMERIC(20,6)).
const QuantityScale = 6

// ValidateQuantity exige una cantidad > 0 representable con QuantityScale decimales.
func ValidateQuantity(field string, q decimal.Decimal) error {
	if !q.IsPositive() {
		return domain.Invalid(field, "debe ser mayor que cero")
	}
	return validateScale(field, q)
}

func validateScale(field string, q decimal.Decimal) error {
	if !q.Equal(q.Truncate(QuantityScale)) {
		return domain.Invalid(field, fmt.Sprintf("máximo %d decimales", QuantityScale))
	}
	return nil
}

// ValidateDocument valida la forma del documento antes de tomar bloqueos.
func ValidateDocument(doc *entity.MovementDocument) error {
	if !doc.Type.Valid() {
		return domain.Invalid("type", "tipo de documento desconocido")
	}
	if len(doc.Lines) == 0 {
		return domain.Invalid("lines", "al menos un renglón es requerido")
	}
	switch doc.Type {
	case entity.DocumentTransfer:
		if doc.FromWarehouseID == "" || doc.ToWarehouseID == "" {
			return domain.Invalid("warehouse", "from_warehouse_id y to_warehouse_id son requeridos")
		}
		if doc.FromWarehouseID == doc.ToWarehouseID {
			return domain.Invalid("to_warehouse_id", "la bodega destino debe ser distinta del origen")
		}
	default:
		if doc.WarehouseID == "" {
			return domain.Invalid("warehouse_id", "es requerido")
		}
	}
	if doc.Type == entity.DocumentAdjustment {
		if _, ok := entity.ParseAdjustmentReason(string(doc.Reason)); !ok {
			return domain.Invalid("reason", "debe ser damage, expiry, theft, correction o count")
		}
		if len(doc.Lines) != 1 {
			return domain.Invalid("lines", "un ajuste afecta exactamente un producto")
		}
	}
	for i, l := range doc.Lines {
		field := fmt.Sprintf("lines[%d]", i)
		if l.ProductID == "" {
			return domain.Invalid(field+".product_id", "es requerido")
		}
		if doc.Type == entity.DocumentAdjustment {
			if err := validateAdjustmentLine(field, doc.Reason, l); err != nil {
				return err
			}
			continue
		}
		if err := ValidateQuantity(field+".quantity", l.Quantity); err != nil {
			return err
		}
	}
	return nil
}

func validateAdjustmentLine(field string, reason entity.AdjustmentReason, l entity.DocumentLine) error {
	if l.CountedQuantity != nil {
		if reason != entity.ReasonCount {
			return domain.Invalid(field+".counted_quantity", "sólo aplica a ajustes por conteo")
		}
		if l.CountedQuantity.IsNegative() {
			return domain.Invalid(field+".counted_quantity", "no puede ser negativa")
		}
		return validateScale(field+".counted_quantity", *l.CountedQuantity)
	}
	if l.QuantityChange.IsZero() {
		return domain.Invalid(field+".quantity_change", "no puede ser cero")
	}
	return validateScale(field+".quantity_change", l.QuantityChange)
}

// CheckWithdrawal exige have - requested >= 0.
func CheckWithdrawal(key entity.BalanceKey, have, requested decimal.Decimal) error {
	if have.Sub(requested).IsNegative() {
		return &domain.InsufficientStockError{
			ProductID:   key.ProductID,
			WarehouseID: key.WarehouseID,
			Have:        have,
			Requested:   requested,
		}
	}
	return nil
}

// ResolveReceipt cambio de una entrada: +quantity, sin límite superior.
func ResolveReceipt(l entity.DocumentLine) (decimal.Decimal, error) {
	if err := ValidateQuantity("quantity", l.Quantity); err != nil {
		return decimal.Zero, err
	}
	return l.Quantity, nil
}

// ResolveDelivery cambio de una salida: -quantity, exige saldo suficiente.
func ResolveDelivery(key entity.BalanceKey, l entity.DocumentLine, have decimal.Decimal) (decimal.Decimal, error) {
	if err := CheckWithdrawal(key, have, l.Quantity); err != nil {
		return decimal.Zero, err
	}
	return l.Quantity.Neg(), nil
}

// ResolveTransfer cambios simétricos del traslado: -quantity en origen, +quantity en destino.
// Sólo el origen tiene precondición de saldo.
func ResolveTransfer(src entity.BalanceKey, l entity.DocumentLine, haveSrc decimal.Decimal) (out, in decimal.Decimal, err error) {
	if err := CheckWithdrawal(src, haveSrc, l.Quantity); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return l.Quantity.Neg(), l.Quantity, nil
}

// ResolveAdjustment cambio de un ajuste. Un conteo con cantidad contada calcula
// counted - have; un cambio negativo exige saldo suficiente. Un conteo que coincide
// con el saldo produce cambio cero.
func ResolveAdjustment(key entity.BalanceKey, reason entity.AdjustmentReason, l entity.DocumentLine, have decimal.Decimal) (decimal.Decimal, error) {
	delta := l.QuantityChange
	if reason == entity.ReasonCount && l.CountedQuantity != nil {
		delta = l.CountedQuantity.Sub(have)
	}
	if delta.IsNegative() {
		if err := CheckWithdrawal(key, have, delta.Neg()); err != nil {
			return decimal.Zero, err
		}
	}
	return delta, nil
}

// CheckReversal exige que negar un asiento no deje el saldo en negativo.
func CheckReversal(key entity.BalanceKey, original decimal.Decimal, have decimal.Decimal) error {
	if original.IsPositive() {
		return CheckWithdrawal(key, have, original)
	}
	return nil
}
