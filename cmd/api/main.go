package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	_ "github.com/jhoicas/stock-ledger/docs"
	"github.com/jhoicas/stock-ledger/internal/application/inventory"
	"github.com/jhoicas/stock-ledger/internal/bootstrap"
	httpRouter "github.com/jhoicas/stock-ledger/internal/interfaces/http"
	"github.com/jhoicas/stock-ledger/pkg/config"
	"github.com/jhoicas/stock-ledger/pkg/logger"
)

// @title                       Stock Ledger API
// @version                     1.0
// @description                 Libro de existencias multi-bodega: entradas, salidas, traslados y ajustes.
// @BasePath                    /
// @securityDefinitions.apikey  Bearer
// @in                          header
// @name                        Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: cfg.App.LogLevel,
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Str("store", cfg.Ledger.Store).
		Msg("iniciando aplicación")
	if cfg.JWT.Secret == "" {
		log.Fatal().Msg("JWT_SECRET es requerido")
	}

	ctx := context.Background()
	ledger, err := bootstrap.NewLedger(ctx, cfg, log, prometheus.DefaultRegisterer)
	if err != nil {
		log.Fatal().Err(err).Msg("inicializar libro de existencias")
	}
	defer ledger.Close()

	// Completa documentos que quedaron a medias por una caída previa.
	if cfg.Ledger.RecoverOnStart {
		n, err := ledger.Engine.Recover(ctx)
		if err != nil {
			log.Error().Err(err).Int("entries", n).Msg("recuperación de documentos incompleta")
		} else if n > 0 {
			log.Warn().Int("entries", n).Msg("asientos recuperados al iniciar")
		}
	}

	var job *inventory.ConsistencyJob
	if cfg.Ledger.VerifySchedule != "" {
		job, err = inventory.NewConsistencyJob(ledger.Projector, log, cfg.Ledger.VerifySchedule, cfg.Ledger.AutoRebuild)
		if err != nil {
			log.Fatal().Err(err).Msg("programar verificación de consistencia")
		}
		job.Start()
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 10,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	// Swagger UI en local: http://localhost:<port>/docs
	app.Use(swagger.New(swagger.Config{
		BasePath: "/",
		FilePath: "./docs/swagger.json",
		Path:     "docs",
		Title:    "Stock Ledger API",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.App.Name, "store": cfg.Ledger.Store})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	httpRouter.Router(app, httpRouter.RouterDeps{
		WarehouseUC:   ledger.WarehouseUC,
		ProductUC:     ledger.ProductUC,
		Engine:        ledger.Engine,
		Query:         ledger.Query,
		Projector:     ledger.Projector,
		Replenishment: ledger.Replenishment,
		JWTSecret:     cfg.JWT.Secret,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}
	if job != nil {
		job.Stop()
	}

	log.Info().Msg("aplicación detenida")
}
