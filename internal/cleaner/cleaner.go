package cleaner

import (
	"time"

	"github.com/utrading/utrading-signal-executor/config"
	"github.com/utrading/utrading-signal-executor/internal/dao"
	"github.com/utrading/utrading-signal-executor/pkg/logger"
)

// Cleaner 数据清理器，定时清理历史数据
type Cleaner struct {
	cfg  config.Cleaner
	done chan struct{}
}

// NewCleaner 创建清理器
func NewCleaner(cfg config.Cleaner) *Cleaner {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.SignalRetention <= 0 {
		cfg.SignalRetention = 7 * 24 * time.Hour
	}
	if cfg.OperationRetention <= 0 {
		cfg.OperationRetention = 30 * 24 * time.Hour
	}
	return &Cleaner{
		cfg:  cfg,
		done: make(chan struct{}),
	}
}

// Start 启动清理任务
func (c *Cleaner) Start() {
	go func() {
		ticker := time.NewTicker(c.cfg.Interval)
		defer ticker.Stop()

		logger.Info().Msg("cleaner started")

		// 启动时立即执行一次
		c.clean()

		for {
			select {
			case <-ticker.C:
				c.clean()
			case <-c.done:
				logger.Info().Msg("cleaner stopped")
				return
			}
		}
	}()
}

// Stop 停止清理器
func (c *Cleaner) Stop() {
	close(c.done)
}

// clean 执行清理任务
func (c *Cleaner) clean() {
	logger.Debug().Msg("running cleanup task")

	if err := c.cleanSignals(); err != nil {
		logger.Error().Err(err).Msg("clean signals failed")
	}

	if err := c.cleanOperations(); err != nil {
		logger.Error().Err(err).Msg("clean operations failed")
	}
}

// cleanSignals 清理过期的终态信号
// pending/processing 永不清理，避免丢掉在途信号
func (c *Cleaner) cleanSignals() error {
	cutoff := time.Now().Add(-c.cfg.SignalRetention)
	deleted, err := dao.Signal().DeleteOldTerminal(cutoff)
	if err != nil {
		return err
	}

	if deleted > 0 {
		logger.Info().
			Int64("deleted", deleted).
			Time("cutoff", cutoff).
			Msg("cleaned old terminal signals")
	}

	return nil
}

// cleanOperations 清理过期的已结束操作
func (c *Cleaner) cleanOperations() error {
	cutoff := time.Now().Add(-c.cfg.OperationRetention)
	deleted, err := dao.Operation().DeleteOldClosed(cutoff)
	if err != nil {
		return err
	}

	if deleted > 0 {
		logger.Info().
			Int64("deleted", deleted).
			Time("cutoff", cutoff).
			Msg("cleaned old closed operations")
	}

	return nil
}
