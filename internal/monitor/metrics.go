package monitor

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 指标收集器
type Metrics struct {
	signalOutcomes    *prometheus.CounterVec
	riskDenials       *prometheus.CounterVec
	sentimentFiltered prometheus.Counter
	advisoryFallbacks prometheus.Counter
	intakeMessages    *prometheus.CounterVec
	pendingSignals    prometheus.Gauge
	natsConnected     prometheus.Gauge
	reconcileSource   *prometheus.CounterVec
	reconcileErrors   prometheus.Counter
	processDuration   prometheus.Histogram
}

// NewMetrics 创建指标收集器
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		signalOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "signal_outcomes_total",
				Help:      "Signal pipeline outcomes by terminal classification",
			},
			[]string{"outcome"}, // executed, risk_blocked, sentiment_filtered, no_credential, dependency, persistence, demo_skipped, panic
		),
		riskDenials: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "risk_denials_total",
				Help:      "Risk evaluator denials by rule",
			},
			[]string{"rule"},
		),
		sentimentFiltered: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sentiment_filtered_total",
				Help:      "Signals rejected by the sentiment filter",
			},
		),
		advisoryFallbacks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "advisory_fallbacks_total",
				Help:      "Advisory sizer failures recovered with the requested amount",
			},
		),
		intakeMessages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "intake_messages_total",
				Help:      "Inbound NATS signal messages",
			},
			[]string{"status"}, // accepted, invalid, persist_error
		),
		pendingSignals: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pending_signals",
				Help:      "Pending signals seen by the last dispatch tick",
			},
		),
		natsConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "nats_connected",
				Help:      "NATS connection status (1=connected, 0=disconnected)",
			},
		),
		reconcileSource: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconcile_source_total",
				Help:      "Position reconciliations by authoritative source",
			},
			[]string{"source"}, // positions, trading_operations
		),
		reconcileErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconcile_errors_total",
				Help:      "Reconciliations where every source failed",
			},
		),
		processDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "process_signal_duration_seconds",
				Help:      "单条信号处理耗时分布（秒）",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		),
	}

	prometheus.MustRegister(
		m.signalOutcomes,
		m.riskDenials,
		m.sentimentFiltered,
		m.advisoryFallbacks,
		m.intakeMessages,
		m.pendingSignals,
		m.natsConnected,
		m.reconcileSource,
		m.reconcileErrors,
		m.processDuration,
	)

	return m
}

// IncSignalOutcome 记录信号终态分类
func (m *Metrics) IncSignalOutcome(outcome string) {
	m.signalOutcomes.WithLabelValues(outcome).Inc()
}

// IncRiskDenial 记录风控拒绝（按规则）
func (m *Metrics) IncRiskDenial(rule string) {
	m.riskDenials.WithLabelValues(rule).Inc()
}

// IncSentimentFiltered 记录情绪过滤
func (m *Metrics) IncSentimentFiltered() {
	m.sentimentFiltered.Inc()
}

// IncAdvisoryFallback 记录建议服务降级
func (m *Metrics) IncAdvisoryFallback() {
	m.advisoryFallbacks.Inc()
}

// IncIntakeMessage 记录入站信号消息
func (m *Metrics) IncIntakeMessage(status string) {
	m.intakeMessages.WithLabelValues(status).Inc()
}

// SetPendingSignals 设置待处理信号数
func (m *Metrics) SetPendingSignals(count int) {
	m.pendingSignals.Set(float64(count))
}

// SetNATSConnected 设置NATS连接状态
func (m *Metrics) SetNATSConnected(connected bool) {
	if connected {
		m.natsConnected.Set(1)
	} else {
		m.natsConnected.Set(0)
	}
}

// IncReconcileSource 记录对账使用的数据源
func (m *Metrics) IncReconcileSource(source string) {
	m.reconcileSource.WithLabelValues(source).Inc()
}

// IncReconcileError 记录全部数据源失败的对账
func (m *Metrics) IncReconcileError() {
	m.reconcileErrors.Inc()
}

// ObserveProcessDuration 观察单条信号处理耗时
func (m *Metrics) ObserveProcessDuration(seconds float64) {
	m.processDuration.Observe(seconds)
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// GetMetrics 获取全局指标收集器
func GetMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		defaultMetrics = NewMetrics("signal_executor")
	})
	return defaultMetrics
}

// InitMetrics 初始化指标收集器（供main使用）
func InitMetrics() {
	GetMetrics()
}
