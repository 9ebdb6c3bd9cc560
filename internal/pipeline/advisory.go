package pipeline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"github.com/utrading/utrading-signal-executor/internal/models"
)

// AdvisoryResult 建议仓位和止盈目标
type AdvisoryResult struct {
	RecommendedAmount   float64 `json:"recommended_amount"`
	ProfitTargetPercent float64 `json:"profit_target_percent"`
}

// AdvisorySource 建议服务（尽力而为，失败不影响信号执行）
type AdvisorySource interface {
	Suggest(ctx context.Context, signal *models.Signal, amountUSDT float64) (AdvisoryResult, error)
}

// HTTPAdvisorySource 建议服务 HTTP 客户端
// 自带独立的短超时，比风控路径的超时更激进：建议拿不到就用原始金额
type HTTPAdvisorySource struct {
	endpoint string
	timeout  time.Duration
	client   *http.Client
}

// NewHTTPAdvisorySource 创建建议数据源
func NewHTTPAdvisorySource(endpoint string, timeout time.Duration) *HTTPAdvisorySource {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HTTPAdvisorySource{
		endpoint: endpoint,
		timeout:  timeout,
		client:   &http.Client{Timeout: timeout},
	}
}

// Suggest 请求建议仓位
func (s *HTTPAdvisorySource) Suggest(ctx context.Context, signal *models.Signal, amountUSDT float64) (AdvisoryResult, error) {
	// 独立超时，不吃掉整条管道的时间预算
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	params := url.Values{}
	params.Set("symbol", signal.Symbol)
	params.Set("signal_type", signal.SignalType)
	params.Set("price", strconv.FormatFloat(signal.Price, 'f', -1, 64))
	params.Set("amount_usdt", strconv.FormatFloat(amountUSDT, 'f', -1, 64))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return AdvisoryResult{}, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return AdvisoryResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return AdvisoryResult{}, fmt.Errorf("advisory service returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return AdvisoryResult{}, err
	}

	amount := gjson.GetBytes(body, "recommended_amount")
	target := gjson.GetBytes(body, "profit_target_percent")
	if !amount.Exists() || amount.Float() <= 0 {
		return AdvisoryResult{}, fmt.Errorf("advisory response missing recommended_amount")
	}

	result := AdvisoryResult{
		RecommendedAmount:   amount.Float(),
		ProfitTargetPercent: target.Float(),
	}
	return result, nil
}
