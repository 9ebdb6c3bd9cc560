package dao

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/utrading/utrading-signal-executor/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(&models.Signal{}, &models.TradingOperation{}, &models.ExchangeCredential{})
	require.NoError(t, err)

	return db
}

func seedSignal(t *testing.T, d *SignalDAO, status string) *models.Signal {
	return seedUserSignal(t, d, 1, status)
}

func seedUserSignal(t *testing.T, d *SignalDAO, userID int64, status string) *models.Signal {
	signal := &models.Signal{
		UserID:     userID,
		Symbol:     "BTCUSDT",
		SignalType: models.SignalTypeBuy,
		Price:      65000,
		Status:     status,
	}
	require.NoError(t, d.Create(signal))
	return signal
}

func seedCredential(t *testing.T, db *gorm.DB, userID int64, mode string, active bool) *models.ExchangeCredential {
	cred := &models.ExchangeCredential{
		UserID:    userID,
		Exchange:  "binance",
		APIKey:    "k",
		APISecret: "s",
		IsActive:  active,
		Mode:      mode,
	}
	require.NoError(t, db.Create(cred).Error)
	return cred
}

// TestSignalDAO_MarkProcessing 条件转移只在 pending 上成功一次
func TestSignalDAO_MarkProcessing(t *testing.T) {
	d := NewSignalDAO(setupTestDB(t))
	signal := seedSignal(t, d, models.SignalStatusPending)

	claimed, err := d.MarkProcessing(signal.ID)
	require.NoError(t, err)
	assert.True(t, claimed)

	// 第二次认领失败：已经不在 pending
	claimed, err = d.MarkProcessing(signal.ID)
	require.NoError(t, err)
	assert.False(t, claimed)

	reloaded, err := d.Get(signal.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SignalStatusProcessing, reloaded.Status)
}

// TestSignalDAO_MarkExecuted 只从 processing 进入 executed，回填分值和时间
func TestSignalDAO_MarkExecuted(t *testing.T) {
	d := NewSignalDAO(setupTestDB(t))
	signal := seedSignal(t, d, models.SignalStatusProcessing)

	score := 12.5
	require.NoError(t, d.MarkExecuted(signal.ID, &score))

	reloaded, err := d.Get(signal.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SignalStatusExecuted, reloaded.Status)
	require.NotNil(t, reloaded.SentimentScore)
	assert.Equal(t, 12.5, *reloaded.SentimentScore)
	assert.NotNil(t, reloaded.ProcessedAt)
	assert.True(t, reloaded.Terminal())

	// pending 的信号不受 MarkExecuted 影响
	pending := seedSignal(t, d, models.SignalStatusPending)
	require.NoError(t, d.MarkExecuted(pending.ID, &score))

	reloaded, err = d.Get(pending.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SignalStatusPending, reloaded.Status)
}

// TestSignalDAO_MarkFailed pending 和 processing 都能终结，终态不可改写
func TestSignalDAO_MarkFailed(t *testing.T) {
	d := NewSignalDAO(setupTestDB(t))

	pending := seedSignal(t, d, models.SignalStatusPending)
	require.NoError(t, d.MarkFailed(pending.ID, "risk blocked"))

	reloaded, err := d.Get(pending.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SignalStatusFailed, reloaded.Status)
	assert.Equal(t, "risk blocked", reloaded.FailReason)
	assert.NotNil(t, reloaded.ProcessedAt)

	processing := seedSignal(t, d, models.SignalStatusProcessing)
	require.NoError(t, d.MarkFailed(processing.ID, "insert failed"))

	reloaded, err = d.Get(processing.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SignalStatusFailed, reloaded.Status)

	// executed 是终态，MarkFailed 不改写
	executed := seedSignal(t, d, models.SignalStatusExecuted)
	require.NoError(t, d.MarkFailed(executed.ID, "should not apply"))

	reloaded, err = d.Get(executed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SignalStatusExecuted, reloaded.Status)
	assert.Empty(t, reloaded.FailReason)
}

// TestSignalDAO_ListDispatchable 只取 pending，按创建时间升序
func TestSignalDAO_ListDispatchable(t *testing.T) {
	d := NewSignalDAO(setupTestDB(t))

	first := seedSignal(t, d, models.SignalStatusPending)
	seedSignal(t, d, models.SignalStatusExecuted)
	second := seedSignal(t, d, models.SignalStatusPending)
	seedSignal(t, d, models.SignalStatusFailed)

	signals, err := d.ListDispatchable(10)
	require.NoError(t, err)
	require.Len(t, signals, 2)
	assert.Equal(t, first.ID, signals[0].ID)
	assert.Equal(t, second.ID, signals[1].ID)

	signals, err = d.ListDispatchable(1)
	require.NoError(t, err)
	assert.Len(t, signals, 1)
}

// TestSignalDAO_ListDispatchable_SkipsDemoUsers 模拟盘用户的信号不进调度批次
// 模拟盘信号永远 pending，占满批次会把后来的实盘信号饿死
func TestSignalDAO_ListDispatchable_SkipsDemoUsers(t *testing.T) {
	db := setupTestDB(t)
	d := NewSignalDAO(db)

	seedCredential(t, db, 2, "DEMO", true)
	seedCredential(t, db, 3, "test", true) // 大小写不敏感
	seedCredential(t, db, 4, "REAL", true)
	seedCredential(t, db, 5, "DEMO", false) // 停用的模拟盘凭证不算

	// 先积压一批模拟盘信号，再来一条实盘信号
	for i := 0; i < 5; i++ {
		seedUserSignal(t, d, 2, models.SignalStatusPending)
	}
	seedUserSignal(t, d, 3, models.SignalStatusPending)
	real := seedUserSignal(t, d, 4, models.SignalStatusPending)
	noCred := seedUserSignal(t, d, 6, models.SignalStatusPending)
	inactiveDemo := seedUserSignal(t, d, 5, models.SignalStatusPending)

	// 批次比模拟盘积压还小，实盘信号依然要被取到
	signals, err := d.ListDispatchable(5)
	require.NoError(t, err)

	ids := make([]int64, 0, len(signals))
	for _, s := range signals {
		ids = append(ids, s.ID)
	}
	assert.ElementsMatch(t, []int64{real.ID, noCred.ID, inactiveDemo.ID}, ids)
}

// TestSignalDAO_ListDispatchable_LatestCredentialWins 多条启用凭证看最近更新的
func TestSignalDAO_ListDispatchable_LatestCredentialWins(t *testing.T) {
	db := setupTestDB(t)
	d := NewSignalDAO(db)

	// 旧的 DEMO 和新的 REAL 并存，以 REAL 为准
	seedCredential(t, db, 1, "DEMO", true)
	newer := seedCredential(t, db, 1, "REAL", true)
	require.NoError(t, db.Model(newer).
		Update("updated_at", time.Now().Add(time.Hour)).Error)

	signal := seedSignal(t, d, models.SignalStatusPending)

	signals, err := d.ListDispatchable(10)
	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.Equal(t, signal.ID, signals[0].ID)
}

// TestSignalDAO_DeleteOldTerminal 只清理过期终态，未处理的信号不动
func TestSignalDAO_DeleteOldTerminal(t *testing.T) {
	db := setupTestDB(t)
	d := NewSignalDAO(db)

	old := time.Now().Add(-48 * time.Hour)
	executed := seedSignal(t, d, models.SignalStatusExecuted)
	failed := seedSignal(t, d, models.SignalStatusFailed)
	pending := seedSignal(t, d, models.SignalStatusPending)
	recent := seedSignal(t, d, models.SignalStatusExecuted)

	// 把前三条改成 48 小时前创建
	for _, id := range []int64{executed.ID, failed.ID, pending.ID} {
		require.NoError(t, db.Model(&models.Signal{}).
			Where("id = ?", id).
			Update("created_at", old).Error)
	}

	deleted, err := d.DeleteOldTerminal(time.Now().Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	// pending 留着，新 executed 留着
	_, err = d.Get(pending.ID)
	assert.NoError(t, err)
	_, err = d.Get(recent.ID)
	assert.NoError(t, err)
	_, err = d.Get(executed.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
