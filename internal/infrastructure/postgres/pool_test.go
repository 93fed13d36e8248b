package postgres

import (
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/pkg/config"
)

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Name: "stock-ledger"},
		DB: config.DBConfig{
			Host: "db", Port: 5432, User: "app", Password: "secreto", DBName: "ledger", SSLMode: "disable",
			MaxConns: 10, MinConns: 1, StatementTimeout: 30 * time.Second,
		},
		Ledger: config.LedgerConfig{LockTimeout: 2 * time.Second},
	}
}

func TestPoolConfig_TiemposDeEsperaDesdeConfiguracion(t *testing.T) {
	pc, err := PoolConfig(testConfig())
	require.NoError(t, err)

	params := pc.ConnConfig.RuntimeParams
	assert.Equal(t, "2000", params["lock_timeout"])
	assert.Equal(t, "30000", params["statement_timeout"])
	assert.Equal(t, "stock-ledger", params["application_name"])
	assert.Equal(t, int32(10), pc.MaxConns)
	assert.Equal(t, int32(1), pc.MinConns)
	assert.Equal(t, "db", pc.ConnConfig.Host)
	assert.NotNil(t, pc.AfterConnect)
}

func TestPoolConfig_SinLimites(t *testing.T) {
	cfg := testConfig()
	cfg.Ledger.LockTimeout = 0
	cfg.DB.StatementTimeout = 0
	pc, err := PoolConfig(cfg)
	require.NoError(t, err)
	assert.NotContains(t, pc.ConnConfig.RuntimeParams, "lock_timeout")
	assert.NotContains(t, pc.ConnConfig.RuntimeParams, "statement_timeout")

	cfg.Ledger.LockTimeout = 300 * time.Microsecond
	pc, err = PoolConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "1", pc.ConnConfig.RuntimeParams["lock_timeout"])
}

func TestPoolConfig_DatabaseURLTienePrioridad(t *testing.T) {
	cfg := testConfig()
	cfg.DB.DatabaseURL = "postgres://u:p@otra:6543/x?sslmode=disable"
	pc, err := PoolConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "otra", pc.ConnConfig.Host)
	assert.Equal(t, uint16(6543), pc.ConnConfig.Port)
}

func TestClassify_CodigosDePostgres(t *testing.T) {
	tests := []struct {
		code string
		want error
	}{
		{"55P03", domain.ErrTimeout},
		{"57014", domain.ErrTimeout},
		{"23505", domain.ErrDuplicate},
		{"23514", domain.ErrConsistencyFault},
		{"40P01", domain.ErrStorageUnavailable},
		{"08006", domain.ErrStorageUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := wrapErr("lock stock balance", &pgconn.PgError{Code: tt.code})
			assert.True(t, errors.Is(err, tt.want), "%s -> %v", tt.code, err)
		})
	}
	assert.Nil(t, classify(&pgconn.PgError{Code: "42601"}))
}
