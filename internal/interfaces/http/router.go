package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/stock-ledger/internal/application/inventory"
	"github.com/jhoicas/stock-ledger/internal/application/usecase"
	"github.com/jhoicas/stock-ledger/pkg/jwt"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	WarehouseUC   *usecase.WarehouseUseCase
	ProductUC     *usecase.ProductUseCase
	Engine        *inventory.MovementEngine
	Query         *inventory.QueryService
	Projector     *inventory.BalanceProjector
	Replenishment *inventory.ReplenishmentUseCase
	JWTSecret     string
}

// Router registra las rutas de la API.
// Lecturas: cualquier rol autenticado. Movimientos: admin y bodeguero. Mantenimiento: admin.
func Router(app *fiber.App, deps RouterDeps) {
	api := app.Group("/api")

	// Rutas protegidas (requieren Bearer Token)
	protected := api.Group("/", AuthMiddleware(deps.JWTSecret))
	writers := RequireRole(jwt.RoleAdmin, jwt.RoleBodeguero)
	admins := RequireRole(jwt.RoleAdmin)

	// Warehouses
	warehouses := protected.Group("/warehouses")
	warehouseHandler := NewWarehouseHandler(deps.WarehouseUC)
	warehouses.Post("/", admins, warehouseHandler.Create)
	warehouses.Get("/", warehouseHandler.List)
	warehouses.Get("/:id", warehouseHandler.GetByID)

	// Products
	products := protected.Group("/products")
	productHandler := NewProductHandler(deps.ProductUC)
	products.Post("/", admins, productHandler.Create)
	products.Get("/", productHandler.List)
	products.Get("/:id", productHandler.GetByID)

	inventoryHandler := NewInventoryHandler(deps.Engine, deps.Query)

	// Movimientos (documento creado y ejecutado en un paso)
	movements := protected.Group("/movements", writers)
	movements.Post("/receipts", inventoryHandler.Receipt)
	movements.Post("/deliveries", inventoryHandler.Delivery)
	movements.Post("/transfers", inventoryHandler.Transfer)
	movements.Post("/adjustments", inventoryHandler.Adjustment)

	// Documentos en borrador
	documents := protected.Group("/documents")
	documents.Post("/", writers, inventoryHandler.CreateDocument)
	documents.Get("/:id", inventoryHandler.GetDocument)
	documents.Post("/:id/execute", writers, inventoryHandler.ExecuteDocument)
	documents.Post("/:id/cancel", writers, inventoryHandler.CancelDocument)
	documents.Post("/:id/discard", writers, inventoryHandler.DiscardDocument)

	// Saldos y libro
	stockHandler := NewStockHandler(deps.Query, deps.Projector, deps.Replenishment)
	stock := protected.Group("/stock")
	stock.Get("/", stockHandler.Current)
	stock.Get("/low", stockHandler.Low)
	stock.Get("/replenishment", stockHandler.Replenishment)
	stock.Post("/rebuild", admins, stockHandler.Rebuild)
	stock.Post("/verify", admins, stockHandler.Verify)
	protected.Get("/ledger", stockHandler.Ledger)
}
