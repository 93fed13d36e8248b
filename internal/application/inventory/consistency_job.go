package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jhoicas/stock-ledger/pkg/logger"
)

// ConsistencyJob verifica periódicamente la proyección contra el libro.
// Con autoRebuild reconstruye las claves que encuentre en falla.
type ConsistencyJob struct {
	projector   *BalanceProjector
	log         *logger.Logger
	cron        *cron.Cron
	autoRebuild bool
	timeout     time.Duration
}

// NewConsistencyJob programa la verificación con una expresión cron estándar (5 campos) o descriptor (@every 10m).
func NewConsistencyJob(projector *BalanceProjector, log *logger.Logger, schedule string, autoRebuild bool) (*ConsistencyJob, error) {
	j := &ConsistencyJob{
		projector:   projector,
		log:         log,
		cron:        cron.New(),
		autoRebuild: autoRebuild,
		timeout:     5 * time.Minute,
	}
	if _, err := j.cron.AddFunc(schedule, func() { _, _ = j.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("programación de verificación inválida %q: %w", schedule, err)
	}
	return j, nil
}

// Start inicia el planificador en segundo plano.
func (j *ConsistencyJob) Start() { j.cron.Start() }

// Stop detiene el planificador y espera a que termine la ejecución en curso.
func (j *ConsistencyJob) Stop() {
	<-j.cron.Stop().Done()
}

// RunOnce ejecuta una verificación y devuelve cuántas claves quedaron en falla.
func (j *ConsistencyJob) RunOnce(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	faulted, err := j.projector.Verify(ctx)
	if err != nil {
		j.log.Error().Err(err).Msg("verificación de consistencia falló")
		return 0, err
	}
	if len(faulted) == 0 {
		j.log.Debug().Msg("proyección consistente con el libro")
		return 0, nil
	}
	j.log.Warn().Int("keys", len(faulted)).Msg("claves en falla de consistencia")
	if !j.autoRebuild {
		return len(faulted), nil
	}
	remaining := 0
	for _, k := range faulted {
		if _, err := j.projector.Rebuild(ctx, k.ProductID, k.WarehouseID); err != nil {
			j.log.Error().Err(err).Str("key", k.String()).Msg("reconstrucción falló")
			remaining++
		}
	}
	return remaining, nil
}
