package config

import (
	"os"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/utrading/utrading-signal-executor/pkg/logger"
)

type Executor struct {
	HealthServerAddr     string        `toml:"health_server_addr"`
	DispatchInterval     time.Duration `toml:"dispatch_interval"`
	DispatchBatchSize    int           `toml:"dispatch_batch_size"`
	WorkerPoolSize       int           `toml:"worker_pool_size"`
	DefaultAmountUSDT    float64       `toml:"default_amount_usdt"`
	DefaultLeverage      int           `toml:"default_leverage"`
	ProcessTimeout       time.Duration `toml:"process_timeout"`
	DefaultProfitPercent float64       `toml:"default_profit_percent"`
}

type Risk struct {
	// 用户缺失风控配置时使用的保守默认值
	DefaultMaxPositionSize  float64 `toml:"default_max_position_size"`
	DefaultMaxLeverage      int     `toml:"default_max_leverage"`
	DefaultDailyLossLimit   float64 `toml:"default_daily_loss_limit"`
	DefaultMaxOpenPositions int     `toml:"default_max_open_positions"`
}

type Sentiment struct {
	Endpoint        string        `toml:"endpoint"`
	FilterThreshold float64       `toml:"filter_threshold"`
	RequestTimeout  time.Duration `toml:"request_timeout"`
	CacheTTL        time.Duration `toml:"cache_ttl"`
}

type Advisory struct {
	Endpoint       string        `toml:"endpoint"`
	RequestTimeout time.Duration `toml:"request_timeout"`
}

type MySQL struct {
	DSN                string   `toml:"dsn"`
	SlaveAddr          []string `toml:"slave_addr"`
	MaxIdleConnections int      `toml:"max_idle_connections"`
	MaxOpenConnections int      `toml:"max_open_connections"`
	SetConnMaxLifetime int      `toml:"set_conn_max_lifetime"`
	SetConnMaxIdleTime int      `toml:"set_conn_max_idle_time"`
	ProxyEnabled       bool     `toml:"proxy_enabled"`
	ProxyAddr          string   `toml:"proxy_addr"`
}

type NATS struct {
	Endpoint string `toml:"endpoint"`
}

type Logger struct {
	Level      string `toml:"level"`
	MaxSize    int    `toml:"max_size"`
	MaxBackups int    `toml:"max_backups"`
	MaxAge     int    `toml:"max_age"`
	Compress   bool   `toml:"compress"`
	Console    bool   `toml:"console"`
}

type Cleaner struct {
	Interval           time.Duration `toml:"interval"`
	SignalRetention    time.Duration `toml:"signal_retention"`
	OperationRetention time.Duration `toml:"operation_retention"`
}

type Config struct {
	Executor  Executor  `toml:"executor"`
	Risk      Risk      `toml:"risk"`
	Sentiment Sentiment `toml:"sentiment"`
	Advisory  Advisory  `toml:"advisory"`
	MySQL     MySQL     `toml:"mysql"`
	NATS      NATS      `toml:"nats"`
	Logger    Logger    `toml:"log"`
	Cleaner   Cleaner   `toml:"cleaner"`
}

var (
	cfg         *Config
	cfgPath     string
	cfgLock     sync.RWMutex
	lastModTime time.Time
	stopChan    chan struct{}
)

func Default() *Config {
	return &Config{
		Executor: Executor{
			HealthServerAddr:     "0.0.0.0:16810",
			DispatchInterval:     5 * time.Second,
			DispatchBatchSize:    100,
			WorkerPoolSize:       30,
			DefaultAmountUSDT:    100,
			DefaultLeverage:      1,
			ProcessTimeout:       15 * time.Second,
			DefaultProfitPercent: 0.5,
		},
		Risk: Risk{
			DefaultMaxPositionSize:  1000,
			DefaultMaxLeverage:      3,
			DefaultDailyLossLimit:   200,
			DefaultMaxOpenPositions: 3,
		},
		Sentiment: Sentiment{
			Endpoint:        "http://localhost:16700/sentiment",
			FilterThreshold: 30,
			RequestTimeout:  3 * time.Second,
			CacheTTL:        time.Minute,
		},
		Advisory: Advisory{
			Endpoint:       "http://localhost:16701/advisory",
			RequestTimeout: 2 * time.Second,
		},
		MySQL: MySQL{
			DSN:                "root:password@tcp(localhost:3306)/utrading?charset=utf8mb4&parseTime=True&loc=Local",
			SlaveAddr:          []string{},
			MaxIdleConnections: 16,
			MaxOpenConnections: 64,
			SetConnMaxLifetime: 7200,
			SetConnMaxIdleTime: 3600,
			ProxyEnabled:       false,
			ProxyAddr:          "127.0.0.1:7890",
		},
		NATS: NATS{
			Endpoint: "nats://localhost:4222",
		},
		Logger: Logger{
			Level:      "info",
			MaxSize:    10,
			MaxBackups: 60,
			MaxAge:     7,
			Compress:   false,
			Console:    false,
		},
		Cleaner: Cleaner{
			Interval:           time.Hour,
			SignalRetention:    7 * 24 * time.Hour,
			OperationRetention: 30 * 24 * time.Hour,
		},
	}
}

func Load(path string) error {
	c := Default()
	if _, err := toml.DecodeFile(path, c); err != nil {
		return err
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	cfgLock.Lock()
	defer cfgLock.Unlock()
	cfg = c
	cfgPath = path
	lastModTime = info.ModTime()

	return nil
}

func Get() *Config {
	cfgLock.RLock()
	defer cfgLock.RUnlock()
	return cfg
}

// Init 初始化配置并启动定期重载（默认10秒）
func Init(path string) error {
	return InitWithInterval(path, 10*time.Second)
}

// InitWithInterval 初始化配置并指定重载间隔
func InitWithInterval(path string, interval time.Duration) error {
	if err := Load(path); err != nil {
		return err
	}

	stopChan = make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				reloadIfNeeded()
			case <-stopChan:
				return
			}
		}
	}()

	return nil
}

// Stop 停止配置重载
func Stop() {
	if stopChan != nil {
		close(stopChan)
	}
}

// reloadIfNeeded 仅在文件修改时重载
func reloadIfNeeded() {
	cfgLock.RLock()
	path := cfgPath
	lastMod := lastModTime
	cfgLock.RUnlock()

	if path == "" {
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		logger.Error().Err(err).Msg("config stat failed")
		return
	}

	if info.ModTime().After(lastMod) {
		if err = Load(path); err != nil {
			logger.Error().Err(err).Msg("config reload failed")
		} else {
			logger.Info().Msg("config reloaded")
		}
	}
}
