package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/stock-ledger/internal/application/dto"
	"github.com/jhoicas/stock-ledger/internal/application/inventory"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// InventoryHandler movimientos de inventario y documentos (protegido).
// El usuario del token es el performed_by de cada asiento.
type InventoryHandler struct {
	engine *inventory.MovementEngine
	query  *inventory.QueryService
}

// NewInventoryHandler construye el handler.
func NewInventoryHandler(engine *inventory.MovementEngine, query *inventory.QueryService) *InventoryHandler {
	return &InventoryHandler{engine: engine, query: query}
}

// Receipt godoc
// @Summary      Registrar entrada de mercancía
// @Description  Crea y ejecuta un documento RECEIPT. Un asiento positivo por renglón.
// @Tags         movements
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.ReceiptRequest  true  "Entrada"
// @Success      201   {object}  dto.MovementResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      503   {object}  dto.ErrorResponse
// @Router       /api/movements/receipts [post]
func (h *InventoryHandler) Receipt(c *fiber.Ctx) error {
	var in dto.ReceiptRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	res, err := h.engine.ExecuteReceipt(c.UserContext(), inventory.ReceiptInput{
		WarehouseID: in.WarehouseID,
		Supplier:    in.Supplier,
		Notes:       in.Notes,
		PerformedBy: GetUserID(c),
		Lines:       lineInputs(in.Lines),
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(toMovementResponse(res.Document, res.Entries))
}

// Delivery godoc
// @Summary      Registrar salida de mercancía
// @Description  Rechaza el documento completo si algún renglón deja saldo negativo.
// @Tags         movements
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.DeliveryRequest  true  "Salida"
// @Success      201   {object}  dto.MovementResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Failure      503   {object}  dto.ErrorResponse
// @Router       /api/movements/deliveries [post]
func (h *InventoryHandler) Delivery(c *fiber.Ctx) error {
	var in dto.DeliveryRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	res, err := h.engine.ExecuteDelivery(c.UserContext(), inventory.DeliveryInput{
		WarehouseID: in.WarehouseID,
		Customer:    in.Customer,
		Notes:       in.Notes,
		PerformedBy: GetUserID(c),
		Lines:       lineInputs(in.Lines),
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(toMovementResponse(res.Document, res.Entries))
}

// Transfer godoc
// @Summary      Trasladar entre bodegas
// @Description  Dos asientos por renglón: -Q en origen y +Q en destino.
// @Tags         movements
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.TransferRequest  true  "Traslado"
// @Success      201   {object}  dto.MovementResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Failure      503   {object}  dto.ErrorResponse
// @Router       /api/movements/transfers [post]
func (h *InventoryHandler) Transfer(c *fiber.Ctx) error {
	var in dto.TransferRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	res, err := h.engine.ExecuteTransfer(c.UserContext(), inventory.TransferInput{
		FromWarehouseID: in.FromWarehouseID,
		ToWarehouseID:   in.ToWarehouseID,
		Notes:           in.Notes,
		PerformedBy:     GetUserID(c),
		Lines:           lineInputs(in.Lines),
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(toMovementResponse(res.Document, res.Entries))
}

// Adjustment godoc
// @Summary      Ajustar inventario
// @Description  quantity_change con signo, o counted_quantity con motivo count.
// @Tags         movements
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.AdjustmentRequest  true  "Ajuste"
// @Success      201   {object}  dto.MovementResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Failure      503   {object}  dto.ErrorResponse
// @Router       /api/movements/adjustments [post]
func (h *InventoryHandler) Adjustment(c *fiber.Ctx) error {
	var in dto.AdjustmentRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	res, err := h.engine.ExecuteAdjustment(c.UserContext(), inventory.AdjustmentInput{
		WarehouseID:     in.WarehouseID,
		ProductID:       in.ProductID,
		Reason:          in.Reason,
		QuantityChange:  in.QuantityChange,
		CountedQuantity: in.CountedQuantity,
		Notes:           in.Notes,
		PerformedBy:     GetUserID(c),
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(toMovementResponse(res.Document, res.Entries))
}

// CreateDocument godoc
// @Summary      Crear documento en borrador
// @Description  El borrador no afecta saldos hasta ejecutarse.
// @Tags         documents
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.CreateDocumentRequest  true  "Documento"
// @Success      201   {object}  dto.DocumentResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Router       /api/documents [post]
func (h *InventoryHandler) CreateDocument(c *fiber.Ctx) error {
	var in dto.CreateDocumentRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	lines := make([]inventory.DocumentLineInput, len(in.Lines))
	for i, l := range in.Lines {
		lines[i] = inventory.DocumentLineInput{
			ProductID:       l.ProductID,
			Quantity:        l.Quantity,
			QuantityChange:  l.QuantityChange,
			CountedQuantity: l.CountedQuantity,
			ExpiryDate:      l.ExpiryDate,
		}
	}
	doc, err := h.engine.CreateDraft(c.UserContext(), inventory.DocumentInput{
		Type:            entity.DocumentType(strings.ToUpper(in.Type)),
		WarehouseID:     in.WarehouseID,
		FromWarehouseID: in.FromWarehouseID,
		ToWarehouseID:   in.ToWarehouseID,
		Party:           in.Party,
		Reason:          in.Reason,
		Notes:           in.Notes,
		PerformedBy:     GetUserID(c),
		Lines:           lines,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(toDocumentResponse(doc))
}

// GetDocument godoc
// @Summary      Obtener documento con sus asientos
// @Tags         documents
// @Security     Bearer
// @Produce      json
// @Param        id   path  string  true  "ID del documento"
// @Success      200  {object}  dto.MovementResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/documents/{id} [get]
func (h *InventoryHandler) GetDocument(c *fiber.Ctx) error {
	doc, entries, err := h.query.Document(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(toMovementResponse(doc, entries))
}

// ExecuteDocument godoc
// @Summary      Ejecutar documento en borrador
// @Tags         documents
// @Security     Bearer
// @Produce      json
// @Param        id   path  string  true  "ID del documento"
// @Success      200  {object}  dto.MovementResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Failure      409  {object}  dto.ErrorResponse
// @Failure      503  {object}  dto.ErrorResponse
// @Router       /api/documents/{id}/execute [post]
func (h *InventoryHandler) ExecuteDocument(c *fiber.Ctx) error {
	res, err := h.engine.Execute(c.UserContext(), c.Params("id"), GetUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(toMovementResponse(res.Document, res.Entries))
}

// CancelDocument godoc
// @Summary      Cancelar documento ejecutado
// @Description  Agrega un asiento de reversión por cada asiento original.
// @Tags         documents
// @Security     Bearer
// @Produce      json
// @Param        id   path  string  true  "ID del documento"
// @Success      200  {object}  dto.MovementResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Failure      409  {object}  dto.ErrorResponse
// @Router       /api/documents/{id}/cancel [post]
func (h *InventoryHandler) CancelDocument(c *fiber.Ctx) error {
	res, err := h.engine.Cancel(c.UserContext(), c.Params("id"), GetUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(toMovementResponse(res.Document, res.ReversalEntries))
}

// DiscardDocument godoc
// @Summary      Descartar borrador
// @Tags         documents
// @Security     Bearer
// @Produce      json
// @Param        id   path  string  true  "ID del documento"
// @Success      200  {object}  dto.DocumentResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/documents/{id}/discard [post]
func (h *InventoryHandler) DiscardDocument(c *fiber.Ctx) error {
	doc, err := h.engine.Discard(c.UserContext(), c.Params("id"), GetUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(toDocumentResponse(doc))
}

func lineInputs(lines []dto.MovementLineRequest) []inventory.LineInput {
	out := make([]inventory.LineInput, len(lines))
	for i, l := range lines {
		out[i] = inventory.LineInput{ProductID: l.ProductID, Quantity: l.Quantity, ExpiryDate: l.ExpiryDate}
	}
	return out
}

func toMovementResponse(doc *entity.MovementDocument, entries []entity.LedgerEntry) dto.MovementResponse {
	return dto.MovementResponse{Document: toDocumentResponse(doc), Entries: toEntryResponses(entries)}
}
