package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/printshop-os/pricing-engine/models"
	testhelpers "github.com/printshop-os/pricing-engine/testing"
)

func setupRecordRepoTest(t *testing.T) (CalculationRecordRepository, *testhelpers.TestDB) {
	t.Helper()
	testDB, err := testhelpers.SetupTestDB()
	if err != nil {
		t.Skipf("test database unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := testDB.TeardownTestDB(); err != nil {
			t.Logf("teardown: %v", err)
		}
	})
	return NewCalculationRecordRepository(testDB.DB), testDB
}

func newTestRecord(t *testing.T, fingerprint string, computedAt time.Time) *models.CalculationRecord {
	t.Helper()
	request, err := json.Marshal(models.CalculationRequest{
		Service:  models.ServiceScreenPrint,
		Quantity: 100,
	})
	require.NoError(t, err)
	result, err := json.Marshal(models.CalculationResult{RequestFingerprint: fingerprint})
	require.NoError(t, err)
	consulted, err := json.Marshal([]models.RuleVersionRef{{RuleUUID: uuid.New(), Revision: 1}})
	require.NoError(t, err)

	return &models.CalculationRecord{
		UUID:               uuid.New(),
		RequestFingerprint: fingerprint,
		SnapshotVersion:    1,
		Request:            request,
		Result:             result,
		RulesConsulted:     consulted,
		ComputedAt:         computedAt,
	}
}

func TestCalculationRecordRepository_SaveAndLoad(t *testing.T) {
	repo, _ := setupRecordRepoTest(t)
	ctx := context.Background()

	record := newTestRecord(t, "fp-save-and-load", time.Now().UTC())
	require.NoError(t, repo.Save(ctx, record))

	loaded, err := repo.ByUUID(ctx, record.UUID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, record.RequestFingerprint, loaded.RequestFingerprint)
	assert.Equal(t, int64(1), loaded.SnapshotVersion)

	request, err := loaded.DecodeRequest()
	require.NoError(t, err)
	assert.Equal(t, models.ServiceScreenPrint, request.Service)
	assert.Equal(t, 100, request.Quantity)

	refs, err := loaded.DecodeRulesConsulted()
	require.NoError(t, err)
	assert.Len(t, refs, 1)

	missing, err := repo.ByUUID(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCalculationRecordRepository_ListByFingerprint(t *testing.T) {
	repo, _ := setupRecordRepoTest(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	oldest := newTestRecord(t, "fp-list", base)
	middle := newTestRecord(t, "fp-list", base.Add(time.Minute))
	newest := newTestRecord(t, "fp-list", base.Add(2*time.Minute))
	other := newTestRecord(t, "fp-other", base)

	for _, r := range []*models.CalculationRecord{oldest, middle, newest, other} {
		require.NoError(t, repo.Save(ctx, r))
	}

	rows, err := repo.ListByFingerprint(ctx, "fp-list", 10, 0)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, newest.UUID, rows[0].UUID)
	assert.Equal(t, oldest.UUID, rows[2].UUID)

	paged, err := repo.ListByFingerprint(ctx, "fp-list", 1, 1)
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, middle.UUID, paged[0].UUID)
}

func TestCalculationRecordRepository_RowsAreImmutable(t *testing.T) {
	repo, testDB := setupRecordRepoTest(t)
	ctx := context.Background()

	record := newTestRecord(t, "fp-immutable", time.Now().UTC())
	require.NoError(t, repo.Save(ctx, record))

	err := testDB.DB.Exec(
		"UPDATE calculation_records SET snapshot_version = 99 WHERE uuid = ?", record.UUID).Error
	assert.Error(t, err, "updates must be rejected by the append-only trigger")

	err = testDB.DB.Exec(
		"DELETE FROM calculation_records WHERE uuid = ?", record.UUID).Error
	assert.Error(t, err, "deletes must be rejected by the append-only trigger")

	loaded, loadErr := repo.ByUUID(ctx, record.UUID)
	require.NoError(t, loadErr)
	require.NotNil(t, loaded)
	assert.Equal(t, int64(1), loaded.SnapshotVersion)
}
