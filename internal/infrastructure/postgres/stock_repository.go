package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

var _ repository.StockRepository = (*StockRepo)(nil)

// StockRepo implementación de StockRepository sobre PostgreSQL (usable con pool o tx).
type StockRepo struct {
	q Querier
}

// NewStockRepository construye el adaptador de saldos. Pasar pool o tx (Querier).
func NewStockRepository(q Querier) *StockRepo {
	return &StockRepo{q: q}
}

const balanceColumns = `product_id, warehouse_id, quantity, last_entry_id, updated_at`

// Get obtiene el saldo de un producto en una bodega; cero si no hay fila.
func (r *StockRepo) Get(ctx context.Context, productID, warehouseID string) (*entity.StockBalance, error) {
	query := `SELECT ` + balanceColumns + ` FROM stock_balances WHERE product_id = $1 AND warehouse_id = $2`
	b, err := scanBalance(r.q.QueryRow(ctx, query, productID, warehouseID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &entity.StockBalance{ProductID: productID, WarehouseID: warehouseID}, nil
		}
		return nil, wrapErr("get stock balance", err)
	}
	return b, nil
}

// GetForUpdate crea la fila en cero si no existe y la bloquea (SELECT FOR UPDATE).
func (r *StockRepo) GetForUpdate(ctx context.Context, productID, warehouseID string) (*entity.StockBalance, error) {
	insert := `
		INSERT INTO stock_balances (product_id, warehouse_id, quantity, last_entry_id, updated_at)
		VALUES ($1, $2, 0, 0, now())
		ON CONFLICT (product_id, warehouse_id) DO NOTHING`
	if _, err := r.q.Exec(ctx, insert, productID, warehouseID); err != nil {
		return nil, wrapErr("ensure stock balance", err)
	}
	query := `SELECT ` + balanceColumns + ` FROM stock_balances
		WHERE product_id = $1 AND warehouse_id = $2
		FOR UPDATE`
	b, err := scanBalance(r.q.QueryRow(ctx, query, productID, warehouseID))
	if err != nil {
		return nil, wrapErr("get stock balance for update", err)
	}
	return b, nil
}

// Upsert inserta o actualiza el saldo (por producto y bodega).
func (r *StockRepo) Upsert(ctx context.Context, b *entity.StockBalance) error {
	query := `
		INSERT INTO stock_balances (product_id, warehouse_id, quantity, last_entry_id, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (product_id, warehouse_id)
		DO UPDATE SET quantity = EXCLUDED.quantity, last_entry_id = EXCLUDED.last_entry_id, updated_at = EXCLUDED.updated_at`
	_, err := r.q.Exec(ctx, query, b.ProductID, b.WarehouseID, b.Quantity, b.LastEntryID, b.UpdatedAt)
	return wrapErr("upsert stock balance", err)
}

// List saldos filtrados por producto y/o bodega.
func (r *StockRepo) List(ctx context.Context, productID, warehouseID string) ([]entity.StockBalance, error) {
	var conds []string
	var args []any
	if productID != "" {
		args = append(args, productID)
		conds = append(conds, fmt.Sprintf("product_id = $%d", len(args)))
	}
	if warehouseID != "" {
		args = append(args, warehouseID)
		conds = append(conds, fmt.Sprintf("warehouse_id = $%d", len(args)))
	}
	query := `SELECT ` + balanceColumns + ` FROM stock_balances`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY warehouse_id, product_id"
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("list stock balances", err)
	}
	defer rows.Close()
	var out []entity.StockBalance
	for rows.Next() {
		b, err := scanBalance(rows)
		if err != nil {
			return nil, wrapErr("scan stock balance", err)
		}
		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list stock balances", err)
	}
	return out, nil
}

// ListLowStock saldos con cantidad menor al punto de reorden del producto.
func (r *StockRepo) ListLowStock(ctx context.Context, warehouseID string) ([]entity.LowStockItem, error) {
	query := `
		SELECT s.product_id, p.sku, p.name, s.warehouse_id, s.quantity, p.reorder_point
		FROM stock_balances s
		JOIN products p ON p.id = s.product_id
		WHERE s.quantity < p.reorder_point
		  AND ($1 = '' OR s.warehouse_id::text = $1)
		ORDER BY s.warehouse_id, s.product_id`
	rows, err := r.q.Query(ctx, query, warehouseID)
	if err != nil {
		return nil, wrapErr("list low stock", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (entity.LowStockItem, error) {
		var it entity.LowStockItem
		err := row.Scan(&it.ProductID, &it.SKU, &it.ProductName, &it.WarehouseID, &it.Quantity, &it.ReorderPoint)
		return it, err
	})
	if err != nil {
		return nil, wrapErr("scan low stock", err)
	}
	return items, nil
}

func scanBalance(row pgx.Row) (*entity.StockBalance, error) {
	var b entity.StockBalance
	if err := row.Scan(&b.ProductID, &b.WarehouseID, &b.Quantity, &b.LastEntryID, &b.UpdatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}
