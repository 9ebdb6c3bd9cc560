package pipeline

import (
	"errors"
	"fmt"
)

// 管道的失败分类。调用方用 errors.As/Is 区分风控拒绝、
// 情绪过滤和其余失败，渲染不同的用户提示。

var (
	// ErrNoActiveCredential 用户没有启用中的交易所凭证
	ErrNoActiveCredential = errors.New("no active exchange credential")

	// ErrSignalNotPending 信号已不在 pending（重复触发或已终结）
	ErrSignalNotPending = errors.New("signal is not pending")
)

// RiskBlockedError 风控规则拒绝
type RiskBlockedError struct {
	Reason  string
	Details map[string]any
}

func (e *RiskBlockedError) Error() string {
	return "risk blocked: " + e.Reason
}

// SentimentFilteredError 情绪过滤拒绝，携带原始分值
type SentimentFilteredError struct {
	Reason string
	Score  float64
}

func (e *SentimentFilteredError) Error() string {
	return fmt.Sprintf("sentiment filtered: %s (score=%.2f)", e.Reason, e.Score)
}

// DependencyError 依赖数据获取失败（风控数据、信号读取等）
// 与业务拒绝区分开：这是 fail-closed，不是规则命中
type DependencyError struct {
	Op  string
	Err error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("dependency %s failed: %v", e.Op, e.Err)
}

func (e *DependencyError) Unwrap() error {
	return e.Err
}
