package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cast"
	"gorm.io/gorm"

	"github.com/utrading/utrading-signal-executor/config"
	"github.com/utrading/utrading-signal-executor/internal/cleaner"
	"github.com/utrading/utrading-signal-executor/internal/dal"
	"github.com/utrading/utrading-signal-executor/internal/dao"
	"github.com/utrading/utrading-signal-executor/internal/intake"
	"github.com/utrading/utrading-signal-executor/internal/monitor"
	"github.com/utrading/utrading-signal-executor/internal/nats"
	"github.com/utrading/utrading-signal-executor/internal/pipeline"
	"github.com/utrading/utrading-signal-executor/internal/reconcile"
	"github.com/utrading/utrading-signal-executor/pkg/logger"
	"github.com/utrading/utrading-signal-executor/pkg/sigproc"
)

func main() {
	var configFile string
	flag.StringVar(&configFile, "config", "cfg.toml", "config file path")
	flag.Parse()

	// 加载配置
	if err := config.Init(configFile); err != nil {
		panic(err)
	}
	cfg := config.Get()

	// 初始化日志
	if err := initLogger(cfg); err != nil {
		panic("init logger failed: " + err.Error())
	}
	defer logger.Close()

	logger.Info().Msg("signal_executor service starting...")

	// 初始化指标
	monitor.InitMetrics()

	// 初始化数据库
	dal.InitMysqlDB(cfg.MySQL)

	// 自动迁移表结构
	dal.AutoMigrate()

	// 初始化 DAO
	dao.InitDAO(dal.MySQL())

	// 创建数据清理器
	dataCleaner := cleaner.NewCleaner(cfg.Cleaner)
	dataCleaner.Start()

	// 初始化 NATS
	publisher, err := nats.NewPublisher(cfg.NATS.Endpoint)
	if err != nil {
		logger.Fatal().Err(err).Msg("init nats publisher failed")
	}
	defer publisher.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 组装信号处理管道
	riskEvaluator := pipeline.NewRiskEvaluator(dao.RiskSettingsStore(), dao.Activity(), cfg.Risk)
	sentimentFilter := pipeline.NewSentimentFilter(cfg.Sentiment.FilterThreshold)
	sentimentSource := pipeline.NewHTTPSentimentSource(
		cfg.Sentiment.Endpoint,
		cfg.Sentiment.RequestTimeout,
		cfg.Sentiment.CacheTTL,
	)
	advisorySource := pipeline.NewHTTPAdvisorySource(
		cfg.Advisory.Endpoint,
		cfg.Advisory.RequestTimeout,
	)
	mapper := pipeline.NewExecutionMapper(dao.Operation())

	processor := pipeline.NewProcessor(
		dao.Signal(),
		dao.Credential(),
		riskEvaluator,
		sentimentFilter,
		sentimentSource,
		advisorySource,
		mapper,
		publisher,
		cfg.Executor.DefaultProfitPercent,
	)

	// 信号入口：NATS 订阅 + pending 轮询调度
	subscriber := intake.NewSubscriber(publisher, dao.Signal())
	if err = subscriber.Start(); err != nil {
		logger.Fatal().Err(err).Msg("start intake subscriber failed")
	}

	dispatcher, err := intake.NewDispatcher(intake.DispatcherConfig{
		Interval:       cfg.Executor.DispatchInterval,
		BatchSize:      cfg.Executor.DispatchBatchSize,
		PoolSize:       cfg.Executor.WorkerPoolSize,
		AmountUSDT:     cfg.Executor.DefaultAmountUSDT,
		Leverage:       cfg.Executor.DefaultLeverage,
		ProcessTimeout: cfg.Executor.ProcessTimeout,
	}, dao.Signal(), processor)
	if err != nil {
		logger.Fatal().Err(err).Msg("init signal dispatcher failed")
	}
	dispatcher.Start()

	// 持仓对账：新表优先，旧表兜底
	reconciler := reconcile.NewDefaultReconciler(dal.MySQL())

	// 健康检查与业务端点
	healthServer := monitor.NewHealthServer(
		cfg.Executor.HealthServerAddr,
		publisher,
		dispatcher,
		gormPinger{db: dal.MySQL()},
	)
	healthServer.Handle("/positions", positionsHandler(reconciler))
	if err = healthServer.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("start health server failed")
	}

	logger.Info().
		Str("health_addr", cfg.Executor.HealthServerAddr).
		Str("nats", cfg.NATS.Endpoint).
		Msg("signal_executor service started successfully")

	// 优雅关闭
	sigproc.GracefulShutdown(func(sig os.Signal) {
		logger.Info().Str("signal", sig.String()).Msg("shutting down...")

		// 停止接收新信号
		subscriber.Close()
		cancel()

		// 停止调度器（等待在途信号处理完）
		dispatcher.Stop()

		// 停止数据清理器
		dataCleaner.Stop()

		// 关闭健康检查服务器
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		healthServer.Stop(shutdownCtx)

		// 关闭配置重载
		config.Stop()

		// 关闭数据库
		dal.CloseMySQL()

		logger.Info().Msg("signal_executor service stopped")
	})

	<-ctx.Done()
}

// gormPinger 健康检查用的数据库探活适配
type gormPinger struct {
	db *gorm.DB
}

func (p gormPinger) Ping() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// positionsHandler 统一持仓视图，供 UI 轮询
func positionsHandler(reconciler *reconcile.Reconciler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := cast.ToInt64(r.URL.Query().Get("user_id"))
		if userID <= 0 {
			http.Error(w, "invalid user_id", http.StatusBadRequest)
			return
		}

		positions, err := reconciler.ListOpenPositions(r.Context(), userID)
		if err != nil {
			logger.Error().Err(err).Int64("user_id", userID).Msg("list open positions failed")
			http.Error(w, "positions unavailable", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(positions)
	}
}

func initLogger(cfg *config.Config) error {
	return logger.NewBuilder().
		SetMaxSize(cfg.Logger.MaxSize).
		SetMaxBackups(cfg.Logger.MaxBackups).
		SetMaxAge(cfg.Logger.MaxAge).
		SetLevel(cfg.Logger.Level).
		EnableCompression(cfg.Logger.Compress).
		EnableConsoleOutput(cfg.Logger.Console).
		Build()
}
