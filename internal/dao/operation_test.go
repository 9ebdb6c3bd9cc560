package dao

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utrading/utrading-signal-executor/internal/models"
)

func seedOperation(t *testing.T, d *OperationDAO, op *models.TradingOperation) *models.TradingOperation {
	if op.Symbol == "" {
		op.Symbol = "BTCUSDT"
	}
	if op.OperationType == "" {
		op.OperationType = models.OperationTypeBuy
	}
	require.NoError(t, d.Create(op))
	return op
}

// TestOperationDAO_UniqueSignal 同一信号只能落一条操作
func TestOperationDAO_UniqueSignal(t *testing.T) {
	d := NewOperationDAO(setupTestDB(t))

	seedOperation(t, d, &models.TradingOperation{
		UserID: 1, SignalID: 100, AmountUSDT: 100, Status: models.OperationStatusWaiting,
	})

	err := d.Create(&models.TradingOperation{
		UserID: 1, SignalID: 100, AmountUSDT: 200, Status: models.OperationStatusWaiting,
	})
	assert.Error(t, err)

	op, err := d.GetBySignal(100)
	require.NoError(t, err)
	assert.Equal(t, 100.0, op.AmountUSDT)
}

// TestOperationDAO_DeleteOldClosed waiting 永不清理
func TestOperationDAO_DeleteOldClosed(t *testing.T) {
	db := setupTestDB(t)
	d := NewOperationDAO(db)

	waiting := seedOperation(t, d, &models.TradingOperation{
		UserID: 1, SignalID: 1, Status: models.OperationStatusWaiting,
	})
	completed := seedOperation(t, d, &models.TradingOperation{
		UserID: 1, SignalID: 2, Status: models.OperationStatusCompleted,
	})

	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, db.Model(&models.TradingOperation{}).
		Where("id IN ?", []int64{waiting.ID, completed.ID}).
		Update("updated_at", old).Error)

	deleted, err := d.DeleteOldClosed(time.Now().Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = d.GetBySignal(1)
	assert.NoError(t, err)
}
