package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

var _ repository.DocumentRepository = (*DocumentRepo)(nil)

// DocumentRepo implementación de DocumentRepository sobre PostgreSQL (usable con pool o tx).
type DocumentRepo struct {
	q Querier
}

// NewDocumentRepository construye el adaptador de documentos. Pasar pool o tx (Querier).
func NewDocumentRepository(q Querier) *DocumentRepo {
	return &DocumentRepo{q: q}
}

const documentColumns = `id, type, status,
	COALESCE(warehouse_id::text, ''), COALESCE(from_warehouse_id::text, ''), COALESCE(to_warehouse_id::text, ''),
	party, reason, notes, created_by, executed_by, cancelled_by,
	created_at, updated_at, executed_at, cancelled_at`

// Create inserta cabecera y renglones en una sola transacción (savepoint si q ya es una tx).
func (r *DocumentRepo) Create(ctx context.Context, d *entity.MovementDocument) error {
	err := pgx.BeginFunc(ctx, r.q, func(tx pgx.Tx) error {
		query := `
			INSERT INTO movement_documents (
				id, type, status, warehouse_id, from_warehouse_id, to_warehouse_id,
				party, reason, notes, created_by, executed_by, cancelled_by,
				created_at, updated_at, executed_at, cancelled_at)
			VALUES ($1, $2, $3, NULLIF($4, '')::uuid, NULLIF($5, '')::uuid, NULLIF($6, '')::uuid,
				$7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`
		_, err := tx.Exec(ctx, query,
			d.ID, string(d.Type), string(d.Status), d.WarehouseID, d.FromWarehouseID, d.ToWarehouseID,
			d.Party, string(d.Reason), d.Notes, d.CreatedBy, d.ExecutedBy, d.CancelledBy,
			d.CreatedAt, d.UpdatedAt, d.ExecutedAt, d.CancelledAt,
		)
		if err != nil {
			return err
		}
		batch := &pgx.Batch{}
		for _, l := range d.Lines {
			batch.Queue(`
				INSERT INTO movement_document_lines (
					document_id, line_no, product_id, quantity, counted_quantity, quantity_change, expiry_date)
				VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				d.ID, l.LineNo, l.ProductID, l.Quantity, l.CountedQuantity, l.QuantityChange, l.ExpiryDate,
			)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	return wrapErr("insert movement document", err)
}

// GetByID obtiene el documento con sus renglones; nil si no existe.
func (r *DocumentRepo) GetByID(ctx context.Context, id string) (*entity.MovementDocument, error) {
	return r.get(ctx, `SELECT `+documentColumns+` FROM movement_documents WHERE id::text = $1`, id)
}

// GetForUpdate obtiene el documento bloqueando la cabecera (SELECT FOR UPDATE).
func (r *DocumentRepo) GetForUpdate(ctx context.Context, id string) (*entity.MovementDocument, error) {
	return r.get(ctx, `SELECT `+documentColumns+` FROM movement_documents WHERE id::text = $1 FOR UPDATE`, id)
}

func (r *DocumentRepo) get(ctx context.Context, query, id string) (*entity.MovementDocument, error) {
	d, err := scanDocument(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, wrapErr("get movement document", err)
	}
	lines, err := r.lines(ctx, []string{d.ID})
	if err != nil {
		return nil, err
	}
	d.Lines = lines[d.ID]
	return d, nil
}

// Update persiste estado, auditoría y el cambio resuelto de cada renglón.
func (r *DocumentRepo) Update(ctx context.Context, d *entity.MovementDocument) error {
	batch := &pgx.Batch{}
	batch.Queue(`
		UPDATE movement_documents
		SET status = $2, executed_by = $3, cancelled_by = $4, updated_at = $5, executed_at = $6, cancelled_at = $7
		WHERE id = $1`,
		d.ID, string(d.Status), d.ExecutedBy, d.CancelledBy, d.UpdatedAt, d.ExecutedAt, d.CancelledAt,
	)
	for _, l := range d.Lines {
		batch.Queue(`
			UPDATE movement_document_lines SET quantity = $3, quantity_change = $4
			WHERE document_id = $1 AND line_no = $2`,
			d.ID, l.LineNo, l.Quantity, l.QuantityChange,
		)
	}
	return wrapErr("update movement document", r.q.SendBatch(ctx, batch).Close())
}

// ListByStatus documentos en los estados dados, del más antiguo al más nuevo.
func (r *DocumentRepo) ListByStatus(ctx context.Context, statuses ...entity.DocumentStatus) ([]*entity.MovementDocument, error) {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	query := `SELECT ` + documentColumns + ` FROM movement_documents
		WHERE cardinality($1::text[]) = 0 OR status = ANY($1)
		ORDER BY created_at, id`
	rows, err := r.q.Query(ctx, query, names)
	if err != nil {
		return nil, wrapErr("list movement documents", err)
	}
	defer rows.Close()
	var docs []*entity.MovementDocument
	var ids []string
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, wrapErr("scan movement document", err)
		}
		docs = append(docs, d)
		ids = append(ids, d.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list movement documents", err)
	}
	if len(ids) == 0 {
		return docs, nil
	}
	lines, err := r.lines(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, d := range docs {
		d.Lines = lines[d.ID]
	}
	return docs, nil
}

func (r *DocumentRepo) lines(ctx context.Context, ids []string) (map[string][]entity.DocumentLine, error) {
	query := `
		SELECT document_id, line_no, product_id, quantity, counted_quantity, quantity_change, expiry_date
		FROM movement_document_lines
		WHERE document_id = ANY($1::uuid[])
		ORDER BY document_id, line_no`
	rows, err := r.q.Query(ctx, query, ids)
	if err != nil {
		return nil, wrapErr("list document lines", err)
	}
	defer rows.Close()
	out := make(map[string][]entity.DocumentLine, len(ids))
	for rows.Next() {
		var docID string
		var l entity.DocumentLine
		var counted *decimal.Decimal
		var expiry *time.Time
		if err := rows.Scan(&docID, &l.LineNo, &l.ProductID, &l.Quantity, &counted, &l.QuantityChange, &expiry); err != nil {
			return nil, wrapErr("scan document line", err)
		}
		l.CountedQuantity = counted
		l.ExpiryDate = expiry
		out[docID] = append(out[docID], l)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list document lines", err)
	}
	return out, nil
}

func scanDocument(row pgx.Row) (*entity.MovementDocument, error) {
	var d entity.MovementDocument
	var typ, status, reason string
	err := row.Scan(
		&d.ID, &typ, &status, &d.WarehouseID, &d.FromWarehouseID, &d.ToWarehouseID,
		&d.Party, &reason, &d.Notes, &d.CreatedBy, &d.ExecutedBy, &d.CancelledBy,
		&d.CreatedAt, &d.UpdatedAt, &d.ExecutedAt, &d.CancelledAt,
	)
	if err != nil {
		return nil, err
	}
	st, err := entity.ParseDocumentStatus(status)
	if err != nil {
		return nil, err
	}
	d.Type = entity.DocumentType(typ)
	d.Status = st
	d.Reason = entity.AdjustmentReason(reason)
	return &d, nil
}
