package nats

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestUnmarshalIntakeSignal 合法消息解析
func TestUnmarshalIntakeSignal(t *testing.T) {
	signal, err := UnmarshalIntakeSignal([]byte(
		`{"user_id": 42, "symbol": "ETHUSDT", "signal_type": "SELL", "price": 3200.5, "timestamp": 1756400000}`,
	))
	require.NoError(t, err)
	assert.Equal(t, int64(42), signal.UserID)
	assert.Equal(t, "ETHUSDT", signal.Symbol)
	assert.Equal(t, "SELL", signal.SignalType)
	assert.Equal(t, 3200.5, signal.Price)
}

// TestIntakeSignal_Validate 非法字段逐个拒绝
func TestIntakeSignal_Validate(t *testing.T) {
	valid := IntakeSignal{UserID: 1, Symbol: "BTCUSDT", SignalType: "BUY", Price: 65000}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*IntakeSignal)
	}{
		{"user_id 为零", func(s *IntakeSignal) { s.UserID = 0 }},
		{"user_id 为负", func(s *IntakeSignal) { s.UserID = -1 }},
		{"symbol 为空", func(s *IntakeSignal) { s.Symbol = "" }},
		{"signal_type 非法", func(s *IntakeSignal) { s.SignalType = "HOLD" }},
		{"signal_type 小写", func(s *IntakeSignal) { s.SignalType = "buy" }},
		{"price 为零", func(s *IntakeSignal) { s.Price = 0 }},
		{"price 为负", func(s *IntakeSignal) { s.Price = -100 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid
			tt.mutate(&s)
			assert.Error(t, s.Validate())
		})
	}
}

// TestExecutionEvent_Marshal 失败原因和操作 ID 按需省略
func TestExecutionEvent_Marshal(t *testing.T) {
	data, err := (&ExecutionEvent{
		SignalID: 7, UserID: 1, Symbol: "BTCUSDT", Status: "executed", OperationID: 99,
	}).Marshal()
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, "executed", m["status"])
	assert.Equal(t, float64(99), m["operation_id"])
	assert.NotContains(t, m, "reason")

	data, err = (&ExecutionEvent{
		SignalID: 8, UserID: 1, Symbol: "BTCUSDT", Status: "failed", Reason: "risk blocked",
	}).Marshal()
	require.NoError(t, err)

	// Unmarshal 会向已有 map 合并，必须用新 map
	var failed map[string]any
	require.NoError(t, json.Unmarshal(data, &failed))
	assert.Equal(t, "risk blocked", failed["reason"])
	assert.NotContains(t, failed, "operation_id")
}
