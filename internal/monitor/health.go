package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utrading/utrading-signal-executor/pkg/goplus"
	"github.com/utrading/utrading-signal-executor/pkg/logger"
)

// HealthServer HTTP 健康检查和指标服务器
type HealthServer struct {
	addr         string
	publisher    PublisherRef
	dispatcher   DispatcherRef
	db           DBRef
	server       *http.Server
	extra        map[string]http.HandlerFunc
	mu           sync.RWMutex
	healthy      bool
	healthySince time.Time
	startTime    time.Time
}

// PublisherRef NATS发布器引用接口
type PublisherRef interface {
	IsConnected() bool
}

// DispatcherRef 信号调度器引用接口
type DispatcherRef interface {
	GetStats() map[string]any
}

// DBRef 数据库引用接口
type DBRef interface {
	Ping() error
}

// NewHealthServer 创建健康检查服务器
func NewHealthServer(addr string, publisher PublisherRef, dispatcher DispatcherRef, db DBRef) *HealthServer {
	return &HealthServer{
		addr:         addr,
		publisher:    publisher,
		dispatcher:   dispatcher,
		db:           db,
		extra:        make(map[string]http.HandlerFunc),
		healthy:      true,
		healthySince: time.Now(),
		startTime:    time.Now(),
	}
}

// Handle 注册额外的业务端点（Start 之前调用）
func (h *HealthServer) Handle(pattern string, fn http.HandlerFunc) {
	h.extra[pattern] = fn
}

// Start 启动HTTP服务器
func (h *HealthServer) Start(ctx context.Context) error {
	mux := http.NewServeMux()

	// 健康检查端点
	mux.HandleFunc("/health", h.healthHandler)
	mux.HandleFunc("/health/ready", h.readyHandler)
	mux.HandleFunc("/health/live", h.liveHandler)

	// Prometheus指标端点
	mux.Handle("/metrics", promhttp.Handler())

	// 服务状态端点
	mux.HandleFunc("/status", h.statusHandler)

	// 业务端点
	for pattern, fn := range h.extra {
		mux.HandleFunc(pattern, fn)
	}

	h.server = &http.Server{
		Addr:         h.addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	logger.Info().Str("addr", h.addr).Msg("health server starting")

	goplus.Go(func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("health server error")
		}
	})

	return nil
}

// Stop 停止服务器
func (h *HealthServer) Stop(ctx context.Context) error {
	h.mu.Lock()
	h.healthy = false
	h.mu.Unlock()

	if h.server == nil {
		return nil
	}
	return h.server.Shutdown(ctx)
}

// HealthStatus 健康状态结构
type HealthStatus struct {
	Healthy      bool           `json:"healthy"`
	HealthySince string         `json:"healthy_since"`
	Uptime       string         `json:"uptime"`
	NATS         NATSStatus     `json:"nats"`
	Database     DatabaseStatus `json:"database"`
}

// NATSStatus NATS连接状态
type NATSStatus struct {
	Connected bool `json:"connected"`
}

// DatabaseStatus 数据库连接状态
type DatabaseStatus struct {
	Reachable bool `json:"reachable"`
}

func (h *HealthServer) snapshot() HealthStatus {
	h.mu.RLock()
	healthy := h.healthy
	since := h.healthySince
	h.mu.RUnlock()

	dbOK := h.db != nil && h.db.Ping() == nil

	return HealthStatus{
		Healthy:      healthy && dbOK,
		HealthySince: since.Format(time.RFC3339),
		Uptime:       time.Since(h.startTime).Round(time.Second).String(),
		NATS:         NATSStatus{Connected: h.publisher != nil && h.publisher.IsConnected()},
		Database:     DatabaseStatus{Reachable: dbOK},
	}
}

func (h *HealthServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := h.snapshot()

	w.Header().Set("Content-Type", "application/json")
	if !status.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(status)
}

// liveHandler 存活探针：进程在就算活
func (h *HealthServer) liveHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// readyHandler 就绪探针：数据库可达才算就绪
func (h *HealthServer) readyHandler(w http.ResponseWriter, r *http.Request) {
	if h.db == nil || h.db.Ping() != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("database unreachable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// statusHandler 服务状态：健康信息 + 调度器统计
func (h *HealthServer) statusHandler(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{
		"health": h.snapshot(),
	}
	if h.dispatcher != nil {
		payload["dispatcher"] = h.dispatcher.GetStats()
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
