package pipeline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/tidwall/gjson"

	"github.com/utrading/utrading-signal-executor/internal/models"
)

// SentimentSource 外部情绪数据源（symbol → score）
type SentimentSource interface {
	Score(ctx context.Context, symbol string) (float64, error)
}

// SentimentFilter 情绪方向一致性过滤
// 强负面情绪拦 BUY，强正面情绪拦 SELL
type SentimentFilter struct {
	Threshold float64
}

// NewSentimentFilter 创建过滤器，threshold <= 0 时取默认 30
func NewSentimentFilter(threshold float64) *SentimentFilter {
	if threshold <= 0 {
		threshold = 30
	}
	return &SentimentFilter{Threshold: threshold}
}

// ShouldFilter 判断信号是否被情绪过滤
func (f *SentimentFilter) ShouldFilter(score float64, signalType string) (bool, string) {
	switch signalType {
	case models.SignalTypeBuy:
		if score <= -f.Threshold {
			return true, fmt.Sprintf("strong negative sentiment for BUY: %.2f <= -%.2f", score, f.Threshold)
		}
	case models.SignalTypeSell:
		if score >= f.Threshold {
			return true, fmt.Sprintf("strong positive sentiment for SELL: %.2f >= %.2f", score, f.Threshold)
		}
	}
	return false, ""
}

// HTTPSentimentSource 情绪服务 HTTP 客户端
// 分值按 symbol 做 TTL 缓存，避免同一轮调度反复打情绪服务
type HTTPSentimentSource struct {
	endpoint string
	client   *http.Client
	cache    *gocache.Cache
}

// NewHTTPSentimentSource 创建情绪数据源
func NewHTTPSentimentSource(endpoint string, timeout, cacheTTL time.Duration) *HTTPSentimentSource {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if cacheTTL <= 0 {
		cacheTTL = time.Minute
	}
	return &HTTPSentimentSource{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		cache:    gocache.New(cacheTTL, cacheTTL*2), // 清理间隔 = 2×TTL
	}
}

// Score 获取情绪分，范围 [-100, 100]
func (s *HTTPSentimentSource) Score(ctx context.Context, symbol string) (float64, error) {
	if v, ok := s.cache.Get(symbol); ok {
		return v.(float64), nil
	}

	reqURL := s.endpoint + "?symbol=" + url.QueryEscape(symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("sentiment service returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}

	field := gjson.GetBytes(body, "score")
	if !field.Exists() {
		return 0, fmt.Errorf("sentiment response missing score field")
	}

	score := clampScore(field.Float())
	s.cache.Set(symbol, score, gocache.DefaultExpiration)

	return score, nil
}

// Stats 缓存统计
func (s *HTTPSentimentSource) Stats() map[string]interface{} {
	return map[string]interface{}{
		"cached_symbols": s.cache.ItemCount(),
	}
}

func clampScore(score float64) float64 {
	if score > 100 {
		return 100
	}
	if score < -100 {
		return -100
	}
	return score
}
