package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

var _ repository.LedgerRepository = (*LedgerRepo)(nil)

// LedgerRepo implementación de LedgerRepository sobre PostgreSQL (usable con pool o tx).
// Sólo inserta; un trigger impide UPDATE y DELETE sobre inventory_ledger.
type LedgerRepo struct {
	q Querier
}

// NewLedgerRepository construye el adaptador del libro. Pasar pool o tx (Querier).
func NewLedgerRepository(q Querier) *LedgerRepo {
	return &LedgerRepo{q: q}
}

// ledgerTailLock clave del advisory lock que serializa a los escritores del libro desde su
// primer INSERT hasta el commit. Con él los IDs de la secuencia se confirman en orden y un
// lector que pagina con AfterID no salta asientos de transacciones aún abiertas.
const ledgerTailLock int64 = 0x1ed6e7

const ledgerColumns = `id, product_id, warehouse_id, reference_type, reference_id, reverses_entry_id,
	quantity_change, resulting_balance, reason, performed_by, notes, created_at`

// Append inserta el asiento calculando el saldo resultante a partir del último asiento de la clave.
// El llamador debe tener bloqueada la fila de stock_balances de la clave y estar dentro de una tx:
// el advisory lock se libera al terminarla.
func (r *LedgerRepo) Append(ctx context.Context, d entity.LedgerEntryDraft) (*entity.LedgerEntry, error) {
	if !d.ReferenceType.Valid() {
		return nil, domain.Invalid("reference_type", fmt.Sprintf("tipo %q desconocido", d.ReferenceType))
	}
	if _, err := r.q.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, ledgerTailLock); err != nil {
		return nil, wrapErr("lock ledger tail", err)
	}
	query := `
		WITH prev AS (
			SELECT resulting_balance FROM inventory_ledger
			WHERE product_id = $1 AND warehouse_id = $2
			ORDER BY id DESC LIMIT 1
		)
		INSERT INTO inventory_ledger (
			product_id, warehouse_id, reference_type, reference_id, reverses_entry_id,
			quantity_change, resulting_balance, reason, performed_by, notes)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, COALESCE((SELECT resulting_balance FROM prev), 0) + $6::numeric, $7, $8, $9)
		RETURNING ` + ledgerColumns
	row := r.q.QueryRow(ctx, query,
		d.ProductID, d.WarehouseID, string(d.ReferenceType), d.ReferenceID, d.ReversesEntryID,
		d.QuantityChange, d.Reason, d.PerformedBy, d.Notes,
	)
	e, err := scanEntry(row)
	if err != nil {
		return nil, wrapErr("append ledger entry", err)
	}
	return e, nil
}

// List devuelve asientos filtrados en orden ascendente por ID.
func (r *LedgerRepo) List(ctx context.Context, f entity.LedgerFilter) ([]entity.LedgerEntry, error) {
	conds := []string{"id > $1"}
	args := []any{f.AfterID}
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.ProductID != "" {
		add("product_id = $%d", f.ProductID)
	}
	if f.WarehouseID != "" {
		add("warehouse_id = $%d", f.WarehouseID)
	}
	if f.ReferenceType != "" {
		add("reference_type = $%d", string(f.ReferenceType))
	}
	if f.ReferenceID != "" {
		add("reference_id = $%d", f.ReferenceID)
	}
	if f.From != nil {
		add("created_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("created_at <= $%d", *f.To)
	}
	query := "SELECT " + ledgerColumns + " FROM inventory_ledger WHERE " + strings.Join(conds, " AND ") + " ORDER BY id"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("list ledger", err)
	}
	defer rows.Close()
	var out []entity.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, wrapErr("scan ledger entry", err)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list ledger", err)
	}
	return out, nil
}

// ListByReference asientos de un documento, originales y reversiones, en orden de escritura.
func (r *LedgerRepo) ListByReference(ctx context.Context, referenceID string) ([]entity.LedgerEntry, error) {
	return r.List(ctx, entity.LedgerFilter{ReferenceID: referenceID})
}

// Last último asiento de la clave; nil si no tiene.
func (r *LedgerRepo) Last(ctx context.Context, productID, warehouseID string) (*entity.LedgerEntry, error) {
	query := "SELECT " + ledgerColumns + `
		FROM inventory_ledger WHERE product_id = $1 AND warehouse_id = $2
		ORDER BY id DESC LIMIT 1`
	e, err := scanEntry(r.q.QueryRow(ctx, query, productID, warehouseID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("last ledger entry", err)
	}
	return e, nil
}

// Keys pares (producto, bodega) con asientos, en orden de bloqueo.
func (r *LedgerRepo) Keys(ctx context.Context, productID, warehouseID string) ([]entity.BalanceKey, error) {
	query := `
		SELECT DISTINCT product_id, warehouse_id FROM inventory_ledger
		WHERE ($1 = '' OR product_id::text = $1) AND ($2 = '' OR warehouse_id::text = $2)
		ORDER BY warehouse_id, product_id`
	rows, err := r.q.Query(ctx, query, productID, warehouseID)
	if err != nil {
		return nil, wrapErr("list ledger keys", err)
	}
	keys, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (entity.BalanceKey, error) {
		var k entity.BalanceKey
		err := row.Scan(&k.ProductID, &k.WarehouseID)
		return k, err
	})
	if err != nil {
		return nil, wrapErr("scan ledger keys", err)
	}
	return keys, nil
}

func scanEntry(row pgx.Row) (*entity.LedgerEntry, error) {
	var e entity.LedgerEntry
	var refType string
	err := row.Scan(
		&e.ID, &e.ProductID, &e.WarehouseID, &refType, &e.ReferenceID, &e.ReversesEntryID,
		&e.QuantityChange, &e.ResultingBalance, &e.Reason, &e.PerformedBy, &e.Notes, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.ReferenceType = entity.ReferenceType(refType)
	return &e, nil
}
