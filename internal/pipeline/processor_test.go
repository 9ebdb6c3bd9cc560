package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/utrading/utrading-signal-executor/config"
	"github.com/utrading/utrading-signal-executor/internal/dao"
	"github.com/utrading/utrading-signal-executor/internal/models"
	natsx "github.com/utrading/utrading-signal-executor/internal/nats"
)

// stubSentiment 模拟情绪数据源
type stubSentiment struct {
	score float64
	err   error
}

func (s *stubSentiment) Score(ctx context.Context, symbol string) (float64, error) {
	return s.score, s.err
}

// stubAdvisory 模拟建议服务
type stubAdvisory struct {
	result AdvisoryResult
	err    error
}

func (s *stubAdvisory) Suggest(ctx context.Context, signal *models.Signal, amountUSDT float64) (AdvisoryResult, error) {
	return s.result, s.err
}

// memPublisher 收集发布的执行事件
type memPublisher struct {
	mu     sync.Mutex
	events []*natsx.ExecutionEvent
}

func (p *memPublisher) PublishExecutionEvent(ev *natsx.ExecutionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *memPublisher) last() *natsx.ExecutionEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		return nil
	}
	return p.events[len(p.events)-1]
}

// failingOps 模拟操作表不可写
type failingOps struct{}

func (failingOps) Create(op *models.TradingOperation) error {
	return errors.New("insert failed")
}

type testPipeline struct {
	db        *gorm.DB
	signals   *dao.SignalDAO
	ops       *dao.OperationDAO
	activity  *dao.ActivityDAO
	creds     *dao.CredentialDAO
	settings  *dao.RiskSettingsDAO
	sentiment *stubSentiment
	advisory  *stubAdvisory
	pub       *memPublisher
	proc      *Processor
}

func newTestDB(t *testing.T) *gorm.DB {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&models.Signal{},
		&models.RiskSettings{},
		&models.TradingOperation{},
		&models.ExchangeCredential{},
		&models.Position{},
	)
	require.NoError(t, err)

	return db
}

func newTestPipeline(t *testing.T) *testPipeline {
	db := newTestDB(t)

	tp := &testPipeline{
		db:        db,
		signals:   dao.NewSignalDAO(db),
		ops:       dao.NewOperationDAO(db),
		activity:  dao.NewActivityDAO(db),
		creds:     dao.NewCredentialDAO(db),
		settings:  dao.NewRiskSettingsDAO(db),
		sentiment: &stubSentiment{score: 10},
		advisory:  &stubAdvisory{result: AdvisoryResult{RecommendedAmount: 80, ProfitTargetPercent: 1.2}},
		pub:       &memPublisher{},
	}

	risk := NewRiskEvaluator(tp.settings, tp.activity, config.Risk{
		DefaultMaxPositionSize:  1000,
		DefaultMaxLeverage:      3,
		DefaultDailyLossLimit:   200,
		DefaultMaxOpenPositions: 3,
	})

	tp.proc = NewProcessor(
		tp.signals, tp.creds, risk,
		NewSentimentFilter(30), tp.sentiment, tp.advisory,
		NewExecutionMapper(tp.ops), tp.pub, 0.5,
	)
	return tp
}

func (tp *testPipeline) seedSignal(t *testing.T, signalType string) *models.Signal {
	signal := &models.Signal{
		UserID:     1,
		Symbol:     "BTCUSDT",
		SignalType: signalType,
		Price:      65000,
		Status:     models.SignalStatusPending,
	}
	require.NoError(t, tp.signals.Create(signal))
	return signal
}

func (tp *testPipeline) seedCredential(t *testing.T, mode string) {
	require.NoError(t, tp.db.Create(&models.ExchangeCredential{
		UserID:    1,
		Exchange:  "binance",
		APIKey:    "k",
		APISecret: "s",
		IsActive:  true,
		Mode:      mode,
	}).Error)
}

func (tp *testPipeline) reload(t *testing.T, id int64) *models.Signal {
	signal, err := tp.signals.Get(id)
	require.NoError(t, err)
	return signal
}

func (tp *testPipeline) opCount(t *testing.T) int64 {
	var count int64
	require.NoError(t, tp.db.Model(&models.TradingOperation{}).Count(&count).Error)
	return count
}

// TestProcessSignal_Executed 测试正常执行链路
func TestProcessSignal_Executed(t *testing.T) {
	tp := newTestPipeline(t)
	tp.seedCredential(t, "REAL")
	signal := tp.seedSignal(t, models.SignalTypeBuy)

	result, err := tp.proc.ProcessSignal(context.Background(), signal.ID, 100, 2)
	require.NoError(t, err)
	require.NotNil(t, result.Operation)

	// 建议服务的结果被采纳
	assert.Equal(t, 80.0, result.RecommendedAmount)
	assert.Equal(t, 1.2, result.ProfitTargetPercent)
	assert.True(t, result.Risk.Allowed)

	// 操作行：waiting、实盘、字段来自信号
	op, err := tp.ops.GetBySignal(signal.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OperationStatusWaiting, op.Status)
	assert.Equal(t, "BTCUSDT", op.Symbol)
	assert.Equal(t, models.OperationTypeBuy, op.OperationType)
	assert.Equal(t, 80.0, op.AmountUSDT)
	assert.Equal(t, 65000.0, op.EntryPrice)
	assert.Equal(t, "binance", op.Exchange)
	assert.False(t, op.IsDemo)

	// 信号终态 executed，回填情绪分和处理时间
	reloaded := tp.reload(t, signal.ID)
	assert.Equal(t, models.SignalStatusExecuted, reloaded.Status)
	require.NotNil(t, reloaded.SentimentScore)
	assert.Equal(t, 10.0, *reloaded.SentimentScore)
	assert.NotNil(t, reloaded.ProcessedAt)

	ev := tp.pub.last()
	require.NotNil(t, ev)
	assert.Equal(t, models.SignalStatusExecuted, ev.Status)
	assert.Equal(t, op.ID, ev.OperationID)
}

// TestProcessSignal_RiskBlocked 测试风控拒绝：金额超限
func TestProcessSignal_RiskBlocked(t *testing.T) {
	tp := newTestPipeline(t)
	tp.seedCredential(t, "REAL")
	signal := tp.seedSignal(t, models.SignalTypeBuy)

	// 没有风控配置行，走保守默认 max_position_size=1000
	_, err := tp.proc.ProcessSignal(context.Background(), signal.ID, 5000, 2)

	var riskErr *RiskBlockedError
	require.ErrorAs(t, err, &riskErr)
	assert.Contains(t, riskErr.Reason, "position size exceeds limit")

	reloaded := tp.reload(t, signal.ID)
	assert.Equal(t, models.SignalStatusFailed, reloaded.Status)
	assert.Contains(t, reloaded.FailReason, "position size")
	assert.Equal(t, int64(0), tp.opCount(t))

	ev := tp.pub.last()
	require.NotNil(t, ev)
	assert.Equal(t, models.SignalStatusFailed, ev.Status)
}

// TestProcessSignal_RiskBlocked_OpenPositionsFromNewTable 持仓数看新表
// 仓位只存在于 positions 表时，max_open_positions 依然要拦住
func TestProcessSignal_RiskBlocked_OpenPositionsFromNewTable(t *testing.T) {
	tp := newTestPipeline(t)
	tp.seedCredential(t, "REAL")
	signal := tp.seedSignal(t, models.SignalTypeBuy)

	// 老表没有任何 waiting 行，3 个未平仓位全在新表
	for i := 0; i < 3; i++ {
		require.NoError(t, tp.db.Create(&models.Position{
			UserID: 1, Symbol: "BTCUSDT", Side: "BUY",
			EntryPrice: 65000, Amount: 100,
			Status: models.PositionStatusOpen,
		}).Error)
	}

	_, err := tp.proc.ProcessSignal(context.Background(), signal.ID, 100, 2)

	var riskErr *RiskBlockedError
	require.ErrorAs(t, err, &riskErr)
	assert.Contains(t, riskErr.Reason, "max open positions reached")

	reloaded := tp.reload(t, signal.ID)
	assert.Equal(t, models.SignalStatusFailed, reloaded.Status)
	assert.Equal(t, int64(0), tp.opCount(t))
}

// TestProcessSignal_SentimentFiltered 测试情绪过滤：强负面拦 BUY
func TestProcessSignal_SentimentFiltered(t *testing.T) {
	tp := newTestPipeline(t)
	tp.seedCredential(t, "REAL")
	tp.sentiment.score = -45
	signal := tp.seedSignal(t, models.SignalTypeBuy)

	_, err := tp.proc.ProcessSignal(context.Background(), signal.ID, 100, 2)

	var sentErr *SentimentFilteredError
	require.ErrorAs(t, err, &sentErr)
	assert.Equal(t, -45.0, sentErr.Score)

	reloaded := tp.reload(t, signal.ID)
	assert.Equal(t, models.SignalStatusFailed, reloaded.Status)
	assert.Equal(t, int64(0), tp.opCount(t))
}

// TestProcessSignal_SentimentUnavailable_FailsOpen 情绪源挂掉按中性放行
func TestProcessSignal_SentimentUnavailable_FailsOpen(t *testing.T) {
	tp := newTestPipeline(t)
	tp.seedCredential(t, "REAL")
	tp.sentiment.err = errors.New("sentiment service down")
	signal := tp.seedSignal(t, models.SignalTypeBuy)

	result, err := tp.proc.ProcessSignal(context.Background(), signal.ID, 100, 2)
	require.NoError(t, err)
	assert.Equal(t, 0.0, result.SentimentScore)

	reloaded := tp.reload(t, signal.ID)
	assert.Equal(t, models.SignalStatusExecuted, reloaded.Status)
}

// TestProcessSignal_RiskDataUnavailable_FailsClosed 风控数据拿不到必须拒绝
func TestProcessSignal_RiskDataUnavailable_FailsClosed(t *testing.T) {
	tp := newTestPipeline(t)
	tp.seedCredential(t, "REAL")
	signal := tp.seedSignal(t, models.SignalTypeBuy)

	// 活动数据源故障的风控评估器
	risk := NewRiskEvaluator(tp.settings, failingActivity{}, config.Risk{
		DefaultMaxPositionSize:  1000,
		DefaultMaxLeverage:      3,
		DefaultDailyLossLimit:   200,
		DefaultMaxOpenPositions: 3,
	})
	proc := NewProcessor(
		tp.signals, tp.creds, risk,
		NewSentimentFilter(30), tp.sentiment, tp.advisory,
		NewExecutionMapper(tp.ops), tp.pub, 0.5,
	)

	_, err := proc.ProcessSignal(context.Background(), signal.ID, 100, 2)

	var depErr *DependencyError
	require.ErrorAs(t, err, &depErr)

	reloaded := tp.reload(t, signal.ID)
	assert.Equal(t, models.SignalStatusFailed, reloaded.Status)
	assert.Equal(t, int64(0), tp.opCount(t))
}

// TestProcessSignal_AdvisoryFailure_FallsBack 建议服务失败降级为原始金额
func TestProcessSignal_AdvisoryFailure_FallsBack(t *testing.T) {
	tp := newTestPipeline(t)
	tp.seedCredential(t, "REAL")
	tp.advisory.err = errors.New("advisory timeout")
	signal := tp.seedSignal(t, models.SignalTypeSell)

	result, err := tp.proc.ProcessSignal(context.Background(), signal.ID, 100, 2)
	require.NoError(t, err)

	// 原始金额 + 默认止盈
	assert.Equal(t, 100.0, result.RecommendedAmount)
	assert.Equal(t, 0.5, result.ProfitTargetPercent)

	op, err := tp.ops.GetBySignal(signal.ID)
	require.NoError(t, err)
	assert.Equal(t, 100.0, op.AmountUSDT)

	reloaded := tp.reload(t, signal.ID)
	assert.Equal(t, models.SignalStatusExecuted, reloaded.Status)
}

// TestProcessSignal_NoCredential 无启用凭证
func TestProcessSignal_NoCredential(t *testing.T) {
	tp := newTestPipeline(t)
	signal := tp.seedSignal(t, models.SignalTypeBuy)

	_, err := tp.proc.ProcessSignal(context.Background(), signal.ID, 100, 2)
	require.ErrorIs(t, err, ErrNoActiveCredential)

	reloaded := tp.reload(t, signal.ID)
	assert.Equal(t, models.SignalStatusFailed, reloaded.Status)
	assert.Equal(t, "no active credential", reloaded.FailReason)
	assert.Equal(t, int64(0), tp.opCount(t))
}

// TestProcessSignal_DemoMode 模拟盘信号原样留给模拟器
func TestProcessSignal_DemoMode(t *testing.T) {
	tp := newTestPipeline(t)
	tp.seedCredential(t, "DEMO")
	signal := tp.seedSignal(t, models.SignalTypeBuy)

	result, err := tp.proc.ProcessSignal(context.Background(), signal.ID, 100, 2)
	require.NoError(t, err)
	assert.True(t, result.DemoSkipped)
	assert.Nil(t, result.Operation)

	// 信号必须保持 pending：所有权归模拟器
	reloaded := tp.reload(t, signal.ID)
	assert.Equal(t, models.SignalStatusPending, reloaded.Status)
	assert.Equal(t, int64(0), tp.opCount(t))
	assert.Nil(t, tp.pub.last())
}

// TestProcessSignal_UnknownMode_TreatedAsReal 未知模式值按实盘跑完整管道
func TestProcessSignal_UnknownMode_TreatedAsReal(t *testing.T) {
	tp := newTestPipeline(t)
	tp.seedCredential(t, "banana")
	signal := tp.seedSignal(t, models.SignalTypeBuy)

	result, err := tp.proc.ProcessSignal(context.Background(), signal.ID, 100, 2)
	require.NoError(t, err)
	assert.False(t, result.DemoSkipped)
	require.NotNil(t, result.Operation)

	reloaded := tp.reload(t, signal.ID)
	assert.Equal(t, models.SignalStatusExecuted, reloaded.Status)
}

// TestProcessSignal_OperationInsertFails 落单失败时信号必须终结为 failed
func TestProcessSignal_OperationInsertFails(t *testing.T) {
	tp := newTestPipeline(t)
	tp.seedCredential(t, "REAL")
	signal := tp.seedSignal(t, models.SignalTypeBuy)

	risk := NewRiskEvaluator(tp.settings, tp.activity, config.Risk{
		DefaultMaxPositionSize:  1000,
		DefaultMaxLeverage:      3,
		DefaultDailyLossLimit:   200,
		DefaultMaxOpenPositions: 3,
	})
	proc := NewProcessor(
		tp.signals, tp.creds, risk,
		NewSentimentFilter(30), tp.sentiment, tp.advisory,
		NewExecutionMapper(failingOps{}), tp.pub, 0.5,
	)

	_, err := proc.ProcessSignal(context.Background(), signal.ID, 100, 2)
	require.Error(t, err)

	// 不能滞留在 processing
	reloaded := tp.reload(t, signal.ID)
	assert.Equal(t, models.SignalStatusFailed, reloaded.Status)
	assert.Equal(t, "operation insert failed", reloaded.FailReason)
}

// TestProcessSignal_AlreadyTerminal 终态信号再触发直接跳过
func TestProcessSignal_AlreadyTerminal(t *testing.T) {
	tp := newTestPipeline(t)
	tp.seedCredential(t, "REAL")
	signal := tp.seedSignal(t, models.SignalTypeBuy)

	_, err := tp.proc.ProcessSignal(context.Background(), signal.ID, 100, 2)
	require.NoError(t, err)

	_, err = tp.proc.ProcessSignal(context.Background(), signal.ID, 100, 2)
	require.ErrorIs(t, err, ErrSignalNotPending)
	assert.Equal(t, int64(1), tp.opCount(t))
}

// TestProcessSignal_ConcurrentDuplicate 并发触发同一信号恰好执行一次
func TestProcessSignal_ConcurrentDuplicate(t *testing.T) {
	tp := newTestPipeline(t)
	tp.seedCredential(t, "REAL")
	signal := tp.seedSignal(t, models.SignalTypeBuy)

	const workers = 8
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, errs[idx] = tp.proc.ProcessSignal(context.Background(), signal.ID, 100, 2)
		}(i)
	}
	wg.Wait()

	var succeeded, skipped int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrSignalNotPending):
			skipped++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, workers-1, skipped)
	assert.Equal(t, int64(1), tp.opCount(t))

	reloaded := tp.reload(t, signal.ID)
	assert.Equal(t, models.SignalStatusExecuted, reloaded.Status)
}

// failingActivity 模拟风控活动数据源故障
type failingActivity struct{}

func (failingActivity) CountOpen(userID int64) (int64, error) {
	return 0, errors.New("db down")
}

func (failingActivity) TodayRealizedLoss(userID int64) (float64, error) {
	return 0, errors.New("db down")
}
