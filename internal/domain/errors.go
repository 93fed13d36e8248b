package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Errores de dominio (sin dependencias de infraestructura).
var (
	ErrNotFound           = errors.New("recurso no encontrado")
	ErrInvalidInput       = errors.New("entrada inválida")
	ErrDuplicate          = errors.New("recurso duplicado")
	ErrUnauthorized       = errors.New("no autorizado")
	ErrConflict           = errors.New("conflicto con el estado actual")
	ErrInsufficientStock  = errors.New("stock insuficiente")
	ErrTimeout            = errors.New("tiempo de espera agotado")
	ErrStorageUnavailable = errors.New("almacenamiento no disponible")
	ErrConsistencyFault   = errors.New("falla de consistencia entre proyección y libro")
)

// ValidationError detalla una entrada inválida. errors.Is(err, ErrInvalidInput) es verdadero.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "entrada inválida: " + e.Reason
	}
	return fmt.Sprintf("entrada inválida: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// Invalid construye un ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// InsufficientStockError indica que un retiro dejaría el saldo en negativo.
type InsufficientStockError struct {
	ProductID   string
	WarehouseID string
	Have        decimal.Decimal
	Requested   decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("stock insuficiente para producto %s en bodega %s: disponible %s, solicitado %s",
		e.ProductID, e.WarehouseID, e.Have.String(), e.Requested.String())
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// ConsistencyFaultError indica que el saldo materializado no coincide con el libro para una clave.
// La clave queda bloqueada para escrituras hasta reconstruirla.
type ConsistencyFaultError struct {
	ProductID   string
	WarehouseID string
	Projected   decimal.Decimal
	Ledger      decimal.Decimal
}

func (e *ConsistencyFaultError) Error() string {
	return fmt.Sprintf("falla de consistencia en producto %s bodega %s: proyección %s, libro %s",
		e.ProductID, e.WarehouseID, e.Projected.String(), e.Ledger.String())
}

func (e *ConsistencyFaultError) Unwrap() error { return ErrConsistencyFault }
