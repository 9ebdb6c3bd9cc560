package intake

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/utrading/utrading-signal-executor/internal/models"
	"github.com/utrading/utrading-signal-executor/internal/monitor"
	"github.com/utrading/utrading-signal-executor/internal/pipeline"
	"github.com/utrading/utrading-signal-executor/pkg/logger"
)

// PendingLister 可调度信号读取（已排除模拟盘用户的信号）
type PendingLister interface {
	ListDispatchable(limit int) ([]*models.Signal, error)
}

// SignalProcessor 信号处理入口
type SignalProcessor interface {
	ProcessSignal(ctx context.Context, signalID int64, amountUSDT float64, leverage int) (*pipeline.Result, error)
}

// DispatcherConfig 调度配置
type DispatcherConfig struct {
	Interval       time.Duration // 轮询间隔
	BatchSize      int           // 每轮最多取多少条
	PoolSize       int           // 工作协程池大小
	AmountUSDT     float64       // 默认下单金额
	Leverage       int           // 默认杠杆
	ProcessTimeout time.Duration // 单条信号处理超时
}

// Dispatcher 轮询 pending 信号并分发到协程池处理
// 重复轮到同一条信号无害：管道的条件状态转移保证幂等
type Dispatcher struct {
	cfg     DispatcherConfig
	signals PendingLister
	proc    SignalProcessor
	pool    *ants.Pool
	done    chan struct{}
	wg      sync.WaitGroup

	dispatched  atomic.Int64
	executed    atomic.Int64
	rejected    atomic.Int64
	demoSkipped atomic.Int64
}

// NewDispatcher 创建调度器
func NewDispatcher(cfg DispatcherConfig, signals PendingLister, proc SignalProcessor) (*Dispatcher, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 30
	}
	if cfg.ProcessTimeout <= 0 {
		cfg.ProcessTimeout = 15 * time.Second
	}

	pool, err := ants.NewPool(cfg.PoolSize)
	if err != nil {
		return nil, err
	}

	return &Dispatcher{
		cfg:     cfg,
		signals: signals,
		proc:    proc,
		pool:    pool,
		done:    make(chan struct{}),
	}, nil
}

// Start 启动轮询
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go d.loop()
	logger.Info().
		Dur("interval", d.cfg.Interval).
		Int("pool_size", d.cfg.PoolSize).
		Msg("signal dispatcher started")
}

func (d *Dispatcher) loop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	// 启动时立即跑一轮，消化积压
	d.dispatchOnce()

	for {
		select {
		case <-ticker.C:
			d.dispatchOnce()
		case <-d.done:
			return
		}
	}
}

func (d *Dispatcher) dispatchOnce() {
	signals, err := d.signals.ListDispatchable(d.cfg.BatchSize)
	if err != nil {
		logger.Error().Err(err).Msg("list pending signals failed")
		return
	}

	monitor.GetMetrics().SetPendingSignals(len(signals))
	if len(signals) == 0 {
		return
	}

	for _, signal := range signals {
		id := signal.ID
		if err = d.pool.Submit(func() {
			d.process(id)
		}); err != nil {
			// 池满时放弃本轮剩余信号，下一轮会重新轮到
			logger.Warn().Err(err).Int64("signal_id", id).Msg("worker pool saturated")
			return
		}
	}
}

func (d *Dispatcher) process(signalID int64) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.ProcessTimeout)
	defer cancel()

	d.dispatched.Add(1)

	result, err := d.proc.ProcessSignal(ctx, signalID, d.cfg.AmountUSDT, d.cfg.Leverage)
	monitor.GetMetrics().ObserveProcessDuration(time.Since(start).Seconds())

	if err == nil {
		// 模拟盘短路不是执行，分开计数
		if result != nil && result.DemoSkipped {
			d.demoSkipped.Add(1)
		} else {
			d.executed.Add(1)
		}
		return
	}

	switch {
	case errors.Is(err, pipeline.ErrSignalNotPending):
		// 并发触发或上一轮已处理，不算失败
	case isBusinessRejection(err):
		d.rejected.Add(1)
	default:
		logger.Error().Err(err).Int64("signal_id", signalID).Msg("process signal failed")
	}
}

// isBusinessRejection 风控拒绝和情绪过滤是正常业务结果，不按错误告警
func isBusinessRejection(err error) bool {
	var riskErr *pipeline.RiskBlockedError
	var sentErr *pipeline.SentimentFilteredError
	return errors.As(err, &riskErr) ||
		errors.As(err, &sentErr) ||
		errors.Is(err, pipeline.ErrNoActiveCredential)
}

// GetStats 调度统计（供 /status 使用）
func (d *Dispatcher) GetStats() map[string]any {
	return map[string]any{
		"dispatched":   d.dispatched.Load(),
		"executed":     d.executed.Load(),
		"rejected":     d.rejected.Load(),
		"demo_skipped": d.demoSkipped.Load(),
		"pool_running": d.pool.Running(),
		"pool_free":    d.pool.Free(),
	}
}

// Stop 停止调度并等待在途任务
func (d *Dispatcher) Stop() {
	close(d.done)
	d.wg.Wait()
	d.pool.Release()
	logger.Info().Msg("signal dispatcher stopped")
}
