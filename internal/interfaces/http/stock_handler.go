package http

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/stock-ledger/internal/application/dto"
	"github.com/jhoicas/stock-ledger/internal/application/inventory"
	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// StockHandler lecturas de saldos y del libro, más mantenimiento de la proyección (admin).
type StockHandler struct {
	query         *inventory.QueryService
	projector     *inventory.BalanceProjector
	replenishment *inventory.ReplenishmentUseCase
}

// NewStockHandler construye el handler.
func NewStockHandler(query *inventory.QueryService, projector *inventory.BalanceProjector, replenishment *inventory.ReplenishmentUseCase) *StockHandler {
	return &StockHandler{query: query, projector: projector, replenishment: replenishment}
}

// Current godoc
// @Summary      Saldos actuales
// @Tags         stock
// @Security     Bearer
// @Produce      json
// @Param        product_id    query  string  false  "Producto"
// @Param        warehouse_id  query  string  false  "Bodega"
// @Success      200  {array}   dto.StockBalanceResponse
// @Failure      503  {object}  dto.ErrorResponse
// @Router       /api/stock [get]
func (h *StockHandler) Current(c *fiber.Ctx) error {
	list, err := h.query.CurrentStock(c.UserContext(), c.Query("product_id"), c.Query("warehouse_id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(toBalanceResponses(list))
}

// Low godoc
// @Summary      Alertas de stock bajo
// @Description  Saldos en o por debajo del punto de reorden del producto.
// @Tags         stock
// @Security     Bearer
// @Produce      json
// @Param        warehouse_id  query  string  false  "Bodega"
// @Success      200  {array}   dto.LowStockResponse
// @Router       /api/stock/low [get]
func (h *StockHandler) Low(c *fiber.Ctx) error {
	items, err := h.query.LowStock(c.UserContext(), c.Query("warehouse_id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(toLowStockResponses(items))
}

// Replenishment godoc
// @Summary      Sugerencias de reabastecimiento
// @Description  Productos bajo el punto de reorden, priorizados por salidas de los últimos 90 días.
// @Tags         stock
// @Security     Bearer
// @Produce      json
// @Param        warehouse_id  query  string  false  "Bodega"
// @Success      200  {array}   dto.ReplenishmentSuggestionDTO
// @Router       /api/stock/replenishment [get]
func (h *StockHandler) Replenishment(c *fiber.Ctx) error {
	out, err := h.replenishment.GenerateReplenishmentList(c.UserContext(), c.Query("warehouse_id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(out)
}

// Ledger godoc
// @Summary      Historial del libro
// @Description  Paginación por cursor: enviar next_after_id como after_id. 0 indica fin.
// @Tags         stock
// @Security     Bearer
// @Produce      json
// @Param        product_id      query  string  false  "Producto"
// @Param        warehouse_id    query  string  false  "Bodega"
// @Param        reference_type  query  string  false  "RECEIPT, DELIVERY, TRANSFER, ADJUSTMENT o *_REVERSAL"
// @Param        reference_id    query  string  false  "Documento"
// @Param        from            query  string  false  "Desde (RFC3339)"
// @Param        to              query  string  false  "Hasta (RFC3339)"
// @Param        after_id        query  int     false  "Cursor"
// @Param        limit           query  int     false  "Tamaño de página"
// @Success      200  {object}  dto.LedgerPageResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Router       /api/ledger [get]
func (h *StockHandler) Ledger(c *fiber.Ctx) error {
	filter := entity.LedgerFilter{
		ProductID:     c.Query("product_id"),
		WarehouseID:   c.Query("warehouse_id"),
		ReferenceType: entity.ReferenceType(strings.ToUpper(c.Query("reference_type"))),
		ReferenceID:   c.Query("reference_id"),
		AfterID:       int64(c.QueryInt("after_id", 0)),
		Limit:         c.QueryInt("limit", 0),
	}
	var err error
	if filter.From, err = queryTime(c, "from"); err != nil {
		return respondError(c, err)
	}
	if filter.To, err = queryTime(c, "to"); err != nil {
		return respondError(c, err)
	}
	page, next, err := h.query.HistoryPage(c.UserContext(), filter)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.LedgerPageResponse{Items: toEntryResponses(page), NextAfterID: next})
}

// Rebuild godoc
// @Summary      Reconstruir saldos desde el libro
// @Description  Sin filtros reconstruye todas las claves. Limpia las fallas de consistencia.
// @Tags         stock
// @Security     Bearer
// @Produce      json
// @Param        product_id    query  string  false  "Producto"
// @Param        warehouse_id  query  string  false  "Bodega"
// @Success      200  {object}  dto.RebuildResponse
// @Failure      403  {object}  dto.ErrorResponse
// @Router       /api/stock/rebuild [post]
func (h *StockHandler) Rebuild(c *fiber.Ctx) error {
	list, err := h.projector.Rebuild(c.UserContext(), c.Query("product_id"), c.Query("warehouse_id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.RebuildResponse{Keys: len(list), Balances: toBalanceResponses(list)})
}

// Verify godoc
// @Summary      Verificar saldos contra el libro
// @Tags         stock
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  dto.VerifyResponse
// @Failure      403  {object}  dto.ErrorResponse
// @Router       /api/stock/verify [post]
func (h *StockHandler) Verify(c *fiber.Ctx) error {
	keys, err := h.projector.Verify(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	out := dto.VerifyResponse{Faulted: make([]dto.BalanceKeyResponse, len(keys))}
	for i, k := range keys {
		out.Faulted[i] = dto.BalanceKeyResponse{ProductID: k.ProductID, WarehouseID: k.WarehouseID}
	}
	return c.JSON(out)
}

func queryTime(c *fiber.Ctx, name string) (*time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, domain.Invalid(name, "formato esperado RFC3339")
	}
	return &t, nil
}
