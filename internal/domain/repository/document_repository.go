package repository

import (
	"context"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// DocumentRepository define el puerto de persistencia de documentos de movimiento y sus renglones.
// Eliminar un documento nunca elimina asientos del libro.
type DocumentRepository interface {
	Create(ctx context.Context, doc *entity.MovementDocument) error
	GetByID(ctx context.Context, id string) (*entity.MovementDocument, error)
	// GetForUpdate bloquea la cabecera del documento hasta el fin de la transacción.
	GetForUpdate(ctx context.Context, id string) (*entity.MovementDocument, error)
	// Update persiste estado, auditoría y el cambio resuelto de cada renglón.
	Update(ctx context.Context, doc *entity.MovementDocument) error
	ListByStatus(ctx context.Context, statuses ...entity.DocumentStatus) ([]*entity.MovementDocument, error)
}
