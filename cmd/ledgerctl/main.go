package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jhoicas/stock-ledger/internal/bootstrap"
	"github.com/jhoicas/stock-ledger/internal/infrastructure/postgres"
	"github.com/jhoicas/stock-ledger/pkg/config"
	"github.com/jhoicas/stock-ledger/pkg/jwt"
	"github.com/jhoicas/stock-ledger/pkg/logger"
)

var (
	productID   string
	warehouseID string
	downSteps   int
	tokenUser   string
	tokenRole   string
)

var rootCmd = &cobra.Command{
	Use:           "ledgerctl",
	Short:         "Operación del libro de existencias: migraciones, verificación y reconstrucción",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migraciones del esquema PostgreSQL",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Aplica todas las migraciones pendientes",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(func(mg *postgres.Migrator) error {
			if err := mg.Up(); err != nil {
				return err
			}
			return printVersion(mg)
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Revierte migraciones (por defecto una)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(func(mg *postgres.Migrator) error {
			if err := mg.Down(downSteps); err != nil {
				return err
			}
			return printVersion(mg)
		})
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Muestra la versión actual del esquema",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(printVersion)
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Compara cada saldo materializado con el fold del libro",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(cmd.Context(), func(l *bootstrap.Ledger) error {
			faulted, err := l.Projector.Verify(cmd.Context())
			if err != nil {
				return err
			}
			for _, k := range faulted {
				fmt.Printf("  [falla] bodega %s producto %s\n", k.WarehouseID, k.ProductID)
			}
			fmt.Printf("Claves en falla: %d\n", len(faulted))
			if len(faulted) > 0 {
				return errors.New("la proyección no coincide con el libro")
			}
			return nil
		})
	},
}

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Reconstruye saldos desde el libro (todas las claves si no hay filtros)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(cmd.Context(), func(l *bootstrap.Ledger) error {
			list, err := l.Projector.Rebuild(cmd.Context(), productID, warehouseID)
			if err != nil {
				return err
			}
			for _, b := range list {
				fmt.Printf("  bodega %s producto %s saldo %s (asiento %d)\n", b.WarehouseID, b.ProductID, b.Quantity.String(), b.LastEntryID)
			}
			fmt.Printf("Claves reconstruidas: %d\n", len(list))
			return nil
		})
	},
}

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Completa documentos ejecutados o cancelados con asientos faltantes",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(cmd.Context(), func(l *bootstrap.Ledger) error {
			n, err := l.Engine.Recover(cmd.Context())
			fmt.Printf("Asientos recuperados: %d\n", n)
			return err
		})
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Emite un JWT firmado con JWT_SECRET para un usuario y rol",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("cargar configuración: %w", err)
		}
		switch tokenRole {
		case jwt.RoleAdmin, jwt.RoleBodeguero, jwt.RoleAuditor:
		default:
			return fmt.Errorf("rol inválido %q: use admin, bodeguero o auditor", tokenRole)
		}
		tok, err := jwt.Generate(cfg.JWT.Secret, tokenUser, tokenRole, cfg.JWT.Issuer, cfg.JWT.Expiration)
		if err != nil {
			return err
		}
		fmt.Println(tok)
		return nil
	},
}

func init() {
	migrateDownCmd.Flags().IntVarP(&downSteps, "steps", "n", 1, "Número de migraciones a revertir")
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd)

	rebuildCmd.Flags().StringVar(&productID, "product", "", "Limitar a un producto")
	rebuildCmd.Flags().StringVar(&warehouseID, "warehouse", "", "Limitar a una bodega")

	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "ID del usuario (performed_by de los asientos)")
	tokenCmd.Flags().StringVar(&tokenRole, "role", jwt.RoleBodeguero, "admin, bodeguero o auditor")
	_ = tokenCmd.MarkFlagRequired("user")

	rootCmd.AddCommand(migrateCmd, verifyCmd, rebuildCmd, recoverCmd, tokenCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("cargar configuración: %w", err)
	}
	log := logger.New(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel})
	return cfg, log, nil
}

func withLedger(ctx context.Context, fn func(l *bootstrap.Ledger) error) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Ledger.Store == config.StoreMemory {
		return errors.New("LEDGER_STORE=memory no tiene estado persistente que operar")
	}
	l, err := bootstrap.NewLedger(ctx, cfg, log, nil)
	if err != nil {
		return err
	}
	defer l.Close()
	return fn(l)
}

func withMigrator(fn func(mg *postgres.Migrator) error) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	mg, err := postgres.NewMigrator(cfg.DB)
	if err != nil {
		return err
	}
	defer mg.Close()
	return fn(mg)
}

func printVersion(mg *postgres.Migrator) error {
	v, dirty, err := mg.Version()
	if err != nil {
		return err
	}
	fmt.Printf("Versión del esquema: %d (dirty=%t)\n", v, dirty)
	return nil
}
