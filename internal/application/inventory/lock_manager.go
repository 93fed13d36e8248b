package inventory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// KeyedLocker serializa el trabajo por clave dentro del proceso.
// Lock ordena las claves antes de adquirirlas, así dos llamadas con claves solapadas
// nunca se bloquean mutuamente. Entre réplicas la exclusión la da el SELECT FOR UPDATE.
type KeyedLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	sem  chan struct{}
	refs int
}

// NewKeyedLocker construye un locker vacío.
func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{locks: make(map[string]*keyLock)}
}

// DocumentLockKey clave de bloqueo de un documento; ordena antes que cualquier saldo.
func DocumentLockKey(docID string) string {
	return "0\x00doc\x00" + docID
}

// BalanceLockKey clave de bloqueo de un saldo. El separador \x00 hace que el orden
// lexicográfico coincida con (warehouse_id, product_id).
func BalanceLockKey(k entity.BalanceKey) string {
	return "1\x00" + k.WarehouseID + "\x00" + k.ProductID
}

// Lock adquiere todas las claves en orden o ninguna. Si ctx vence antes,
// libera lo adquirido y devuelve domain.ErrTimeout. unlock libera en orden inverso.
func (l *KeyedLocker) Lock(ctx context.Context, keys ...string) (unlock func(), err error) {
	sorted := uniqueSorted(keys)
	held := make([]string, 0, len(sorted))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			l.release(held[i])
		}
		held = held[:0]
	}
	for _, k := range sorted {
		kl := l.acquireRef(k)
		select {
		case kl.sem <- struct{}{}:
			held = append(held, k)
		case <-ctx.Done():
			l.dropRef(k)
			release()
			return nil, fmt.Errorf("%w: esperando bloqueo: %v", domain.ErrTimeout, ctx.Err())
		}
	}
	var once sync.Once
	return func() { once.Do(release) }, nil
}

func (l *KeyedLocker) acquireRef(k string) *keyLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl, ok := l.locks[k]
	if !ok {
		kl = &keyLock{sem: make(chan struct{}, 1)}
		l.locks[k] = kl
	}
	kl.refs++
	return kl
}

func (l *KeyedLocker) dropRef(k string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl := l.locks[k]
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, k)
	}
}

func (l *KeyedLocker) release(k string) {
	l.mu.Lock()
	kl := l.locks[k]
	l.mu.Unlock()
	<-kl.sem
	l.dropRef(k)
}

// Len número de claves con titular o en espera (tests).
func (l *KeyedLocker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

func uniqueSorted(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
