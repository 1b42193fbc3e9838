package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apsentry/apsentry/config"
	"github.com/apsentry/apsentry/internal/database"
	"github.com/apsentry/apsentry/internal/seed"
	"github.com/apsentry/apsentry/models"
)

var testTime = time.Date(2026, time.March, 15, 9, 0, 0, 0, time.UTC)

func testConfig() *config.Config {
	return &config.Config{
		AlertMinAmount:      decimal.NewFromInt(500),
		AlertSigmaThreshold: 2.0,
		DuplicateDayWindow:  7,
		BaselineDays:        90,
	}
}

func newTestEngine(store models.TxStore) *Engine {
	e := New(store, testConfig())
	e.now = func() time.Time { return testTime }
	return e
}

// The demo fixture yields exactly one duplicate (the 5000 pair three days
// apart) and three round numbers (the itemless 5000s); no vendor's baseline
// puts any bill past the 2-sigma threshold.
func TestRunDetectionDemoFixture(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemory()
	tenantID, err := seed.Demo(ctx, store, testTime)
	require.NoError(t, err)

	e := newTestEngine(store)
	count, err := e.RunDetection(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	kinds := map[models.AnomalyKind]int{}
	alerts, err := store.OpenAlerts(ctx, tenantID)
	require.NoError(t, err)
	for _, a := range alerts {
		kinds[a.Kind]++
	}
	assert.Equal(t, 1, kinds[models.KindDuplicate])
	assert.Equal(t, 3, kinds[models.KindRoundNumber])
	assert.Zero(t, kinds[models.KindPriceCreep])
}

func TestRunDetectionIdempotent(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemory()
	tenantID, err := seed.Demo(ctx, store, testTime)
	require.NoError(t, err)

	e := newTestEngine(store)
	first, err := e.RunDetection(ctx, tenantID)
	require.NoError(t, err)
	require.Greater(t, first, 0)

	second, err := e.RunDetection(ctx, tenantID)
	require.NoError(t, err)
	assert.Zero(t, second)
}

// Concurrent runs for the same tenant serialize on the per-tenant lock, so
// the findings are created exactly once between them.
func TestRunDetectionConcurrentSameTenant(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemory()
	tenantID, err := seed.Demo(ctx, store, testTime)
	require.NoError(t, err)

	e := newTestEngine(store)

	var wg sync.WaitGroup
	counts := make([]int, 2)
	for i := range counts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			n, err := e.RunDetection(ctx, tenantID)
			assert.NoError(t, err)
			counts[i] = n
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 4, counts[0]+counts[1])
}

// failingStore makes every anomaly insert fail, forcing a mid-run abort.
type failingStore struct {
	*database.Memory
}

func (f *failingStore) Transact(ctx context.Context, fn func(models.Store) error) error {
	return f.Memory.Transact(ctx, func(s models.Store) error {
		return fn(&failingInserts{Store: s})
	})
}

type failingInserts struct {
	models.Store
}

func (f *failingInserts) InsertAnomaly(ctx context.Context, a *models.Anomaly) (bool, error) {
	return false, errors.New("write failed")
}

func TestRunDetectionRollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	mem := database.NewMemory()
	tenantID, err := seed.Demo(ctx, mem, testTime)
	require.NoError(t, err)

	e := newTestEngine(&failingStore{Memory: mem})
	_, err = e.RunDetection(ctx, tenantID)
	require.Error(t, err)

	// Nothing from the failed run is observable, baselines included.
	alerts, err := mem.OpenAlerts(ctx, tenantID)
	require.NoError(t, err)
	assert.Empty(t, alerts)

	baselines, err := mem.BaselinesByTenant(ctx, tenantID)
	require.NoError(t, err)
	assert.Empty(t, baselines)

	// A clean store succeeds afterwards with the full set.
	count, err := newTestEngine(mem).RunDetection(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}
