package pipeline

import (
	"context"
	"errors"
	"sync"

	"gorm.io/gorm"

	"github.com/utrading/utrading-signal-executor/internal/models"
	"github.com/utrading/utrading-signal-executor/internal/monitor"
	natsx "github.com/utrading/utrading-signal-executor/internal/nats"
	"github.com/utrading/utrading-signal-executor/pkg/concurrent"
	"github.com/utrading/utrading-signal-executor/pkg/logger"
)

// SignalStore 信号生命周期存取
type SignalStore interface {
	Get(id int64) (*models.Signal, error)
	MarkProcessing(id int64) (bool, error)
	MarkExecuted(id int64, sentimentScore *float64) error
	MarkFailed(id int64, reason string) error
}

// CredentialStore 凭证读取
type CredentialStore interface {
	GetActive(userID int64) (*models.ExchangeCredential, error)
}

// EventPublisher 执行结果事件发布（尽力而为）
type EventPublisher interface {
	PublishExecutionEvent(ev *natsx.ExecutionEvent) error
}

// Result 一次信号处理的完整输出
type Result struct {
	Operation           *models.TradingOperation `json:"operation,omitempty"`
	RecommendedAmount   float64                  `json:"recommended_amount"`
	ProfitTargetPercent float64                  `json:"profit_target_percent"`
	Risk                RiskCheckResult          `json:"risk"`
	SentimentScore      float64                  `json:"sentiment_score"`
	DemoSkipped         bool                     `json:"demo_skipped"`
}

// Processor 信号处理管道
// 闸口顺序：模式 → 风控 → 情绪 → 建议仓位 → 落单
type Processor struct {
	signals   SignalStore
	creds     CredentialStore
	risk      *RiskEvaluator
	filter    *SentimentFilter
	sentiment SentimentSource
	advisory  AdvisorySource
	mapper    *ExecutionMapper
	publisher EventPublisher

	defaultProfitPercent float64

	// 同一信号 ID 的处理串行化；数据库的条件状态转移兜底
	locks concurrent.Map[int64, *sync.Mutex]
}

// NewProcessor 创建处理管道
func NewProcessor(
	signals SignalStore,
	creds CredentialStore,
	risk *RiskEvaluator,
	filter *SentimentFilter,
	sentiment SentimentSource,
	advisory AdvisorySource,
	mapper *ExecutionMapper,
	publisher EventPublisher,
	defaultProfitPercent float64,
) *Processor {
	if defaultProfitPercent <= 0 {
		defaultProfitPercent = 0.5
	}
	return &Processor{
		signals:              signals,
		creds:                creds,
		risk:                 risk,
		filter:               filter,
		sentiment:            sentiment,
		advisory:             advisory,
		mapper:               mapper,
		publisher:            publisher,
		defaultProfitPercent: defaultProfitPercent,
	}
}

// ProcessSignal 处理一条信号
// 返回的 error 可用 errors.As 区分 *RiskBlockedError、*SentimentFilteredError，
// 以及 ErrNoActiveCredential；其余为依赖或持久化失败
func (p *Processor) ProcessSignal(ctx context.Context, signalID int64, amountUSDT float64, leverage int) (*Result, error) {
	mu := p.lockSignal(signalID)
	defer p.unlockSignal(signalID, mu)

	signal, err := p.signals.Get(signalID)
	if err != nil {
		return nil, &DependencyError{Op: "signal fetch", Err: err}
	}

	if signal.Status != models.SignalStatusPending {
		// 重复触发：webhook 重试、双击等。赢家已经处理或正在处理
		logger.Debug().
			Int64("signal_id", signalID).
			Str("status", signal.Status).
			Msg("signal already claimed, skipping")
		return nil, ErrSignalNotPending
	}

	cred, err := p.creds.GetActive(signal.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			p.fail(signal, "no active credential", "no_credential")
			return nil, ErrNoActiveCredential
		}
		p.fail(signal, "credential fetch failed", "dependency")
		return nil, &DependencyError{Op: "credential fetch", Err: err}
	}

	// 模式闸口：模拟盘信号归模拟器管，这里纯只读短路，不做任何转移
	if ParseAccountMode(cred.Mode).IsDemo() {
		logger.Debug().
			Int64("signal_id", signalID).
			Int64("user_id", signal.UserID).
			Msg("demo mode, signal left to simulator")
		monitor.GetMetrics().IncSignalOutcome("demo_skipped")
		return &Result{DemoSkipped: true}, nil
	}

	result := &Result{RecommendedAmount: amountUSDT, ProfitTargetPercent: p.defaultProfitPercent}

	// 风控：数据拿不到按拒绝处理，绝不默认放行
	riskResult, err := p.risk.Check(ctx, signal.UserID, amountUSDT, leverage)
	if err != nil {
		logger.Error().Err(err).
			Int64("signal_id", signalID).
			Msg("risk data unavailable, failing closed")
		p.fail(signal, "risk data unavailable", "dependency")
		return nil, err
	}
	result.Risk = riskResult

	if !riskResult.Allowed {
		logger.Info().
			Int64("signal_id", signalID).
			Str("reason", riskResult.Reason).
			Msg("signal blocked by risk limits")
		monitor.GetMetrics().IncRiskDenial(riskResult.Rule)
		p.fail(signal, riskResult.Reason, "risk_blocked")
		return nil, &RiskBlockedError{Reason: riskResult.Reason, Details: riskResult.Details}
	}

	// 情绪：数据源不可用时按中性 0 分放行（fail open），
	// 丢的只是一层启发式校验，和风控的 fail closed 是刻意的不对称
	score, err := p.sentiment.Score(ctx, signal.Symbol)
	if err != nil {
		logger.Warn().Err(err).
			Str("symbol", signal.Symbol).
			Msg("sentiment source unavailable, treating score as neutral")
		score = 0
	}
	result.SentimentScore = score

	if filtered, reason := p.filter.ShouldFilter(score, signal.SignalType); filtered {
		logger.Info().
			Int64("signal_id", signalID).
			Float64("score", score).
			Str("reason", reason).
			Msg("signal filtered by sentiment")
		monitor.GetMetrics().IncSentimentFiltered()
		p.fail(signal, reason, "sentiment_filtered")
		return nil, &SentimentFilteredError{Reason: reason, Score: score}
	}

	// 占住信号：pending → processing，失败说明并发触发已被别人赢走
	claimed, err := p.signals.MarkProcessing(signalID)
	if err != nil {
		p.fail(signal, "status transition failed", "dependency")
		return nil, &DependencyError{Op: "mark processing", Err: err}
	}
	if !claimed {
		return nil, ErrSignalNotPending
	}

	// 从这里起信号在 processing，任何失败路径必须补偿回 failed
	op, err := p.executeClaimed(ctx, signal, cred, amountUSDT, score, result)
	if err != nil {
		return nil, err
	}
	result.Operation = op

	monitor.GetMetrics().IncSignalOutcome("executed")
	p.publish(signal, models.SignalStatusExecuted, "", op.ID)

	return result, nil
}

// executeClaimed 处理已进入 processing 的信号：建议仓位 + 落单 + 终态转移
func (p *Processor) executeClaimed(ctx context.Context, signal *models.Signal, cred *models.ExchangeCredential, amountUSDT, score float64, result *Result) (op *models.TradingOperation, err error) {
	defer func() {
		// 补偿：processing 的信号绝不滞留，包括 panic 路径
		if r := recover(); r != nil {
			logger.Error().
				Int64("signal_id", signal.ID).
				Any("panic", r).
				Msg("panic while executing signal")
			p.fail(signal, "internal error", "panic")
			err = &DependencyError{Op: "execute", Err: errors.New("panic during execution")}
		}
	}()

	// 建议仓位：纯增强步骤，失败降级用原始金额和默认止盈
	suggestion, aerr := p.advisory.Suggest(ctx, signal, amountUSDT)
	if aerr != nil {
		logger.Warn().Err(aerr).
			Int64("signal_id", signal.ID).
			Msg("advisory unavailable, falling back to requested amount")
		monitor.GetMetrics().IncAdvisoryFallback()
	} else {
		result.RecommendedAmount = suggestion.RecommendedAmount
		if suggestion.ProfitTargetPercent > 0 {
			result.ProfitTargetPercent = suggestion.ProfitTargetPercent
		}
	}

	op, err = p.mapper.Execute(ctx, signal, result.RecommendedAmount, cred)
	if err != nil {
		p.fail(signal, "operation insert failed", "persistence")
		return nil, err
	}

	// 操作落库确认后才进 executed
	if err = p.signals.MarkExecuted(signal.ID, &score); err != nil {
		// 操作已存在，信号状态必须可审计地终结
		p.fail(signal, "executed transition failed", "persistence")
		return nil, &DependencyError{Op: "mark executed", Err: err}
	}

	return op, nil
}

// fail 把信号终结为 failed 并发布事件，失败只记日志
func (p *Processor) fail(signal *models.Signal, reason, outcome string) {
	if err := p.signals.MarkFailed(signal.ID, reason); err != nil {
		logger.Error().Err(err).
			Int64("signal_id", signal.ID).
			Str("reason", reason).
			Msg("mark signal failed errored")
	}
	monitor.GetMetrics().IncSignalOutcome(outcome)
	p.publish(signal, models.SignalStatusFailed, reason, 0)
}

func (p *Processor) publish(signal *models.Signal, status, reason string, operationID int64) {
	if p.publisher == nil {
		return
	}
	ev := &natsx.ExecutionEvent{
		SignalID:    signal.ID,
		UserID:      signal.UserID,
		Symbol:      signal.Symbol,
		Status:      status,
		Reason:      reason,
		OperationID: operationID,
	}
	if err := p.publisher.PublishExecutionEvent(ev); err != nil {
		logger.Error().Err(err).
			Int64("signal_id", signal.ID).
			Msg("publish execution event failed")
	}
}

func (p *Processor) lockSignal(id int64) *sync.Mutex {
	mu, _ := p.locks.LoadOrStore(id, &sync.Mutex{})
	mu.Lock()
	return mu
}

func (p *Processor) unlockSignal(id int64, mu *sync.Mutex) {
	// 删除和解锁之间的窗口由 MarkProcessing 的条件更新兜底
	p.locks.Delete(id)
	mu.Unlock()
}
