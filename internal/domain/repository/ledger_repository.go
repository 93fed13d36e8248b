package repository

import (
	"context"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// LedgerRepository es el puerto del libro de inventario: append-only, sin Update ni Delete.
type LedgerRepository interface {
	// Append asigna ID, fecha y saldo resultante (saldo del último asiento de la clave + cambio)
	// de forma atómica con la escritura.
	Append(ctx context.Context, draft entity.LedgerEntryDraft) (*entity.LedgerEntry, error)
	// List devuelve asientos en orden ascendente por ID; AfterID y Limit paginan.
	List(ctx context.Context, filter entity.LedgerFilter) ([]entity.LedgerEntry, error)
	// ListByReference devuelve los asientos de un documento (originales y reversiones), ascendente.
	ListByReference(ctx context.Context, referenceID string) ([]entity.LedgerEntry, error)
	// Last devuelve el último asiento de la clave (nil si no tiene).
	Last(ctx context.Context, productID, warehouseID string) (*entity.LedgerEntry, error)
	// Keys devuelve los pares con al menos un asiento, opcionalmente filtrados.
	Keys(ctx context.Context, productID, warehouseID string) ([]entity.BalanceKey, error)
}
