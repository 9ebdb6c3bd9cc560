package reconcile

import (
	"time"

	"github.com/spf13/cast"
)

// OpenPosition 统一的持仓视图
// 每次对账即时派生，不落库
type OpenPosition struct {
	ID           int64      `json:"id"`
	Symbol       string     `json:"symbol"`
	Side         string     `json:"side"`
	EntryPrice   float64    `json:"entry_price"`
	CurrentPrice *float64   `json:"current_price,omitempty"`
	Amount       float64    `json:"amount"`
	Pnl          float64    `json:"pnl"`
	Status       string     `json:"status"`
	CreatedAt    *time.Time `json:"created_at,omitempty"`
	IsAuto       bool       `json:"is_auto"`
	IsDemo       bool       `json:"is_demo"`
}

// normalizeRow 把一行松散的数据库记录归一化为 OpenPosition
// 两套 schema 的字段名不完全一致（entry_price/price、amount/amount_usdt），
// 按优先级逐个取第一个存在的字段
func normalizeRow(row map[string]any) OpenPosition {
	pos := OpenPosition{
		ID:         cast.ToInt64(pick(row, "id")),
		Symbol:     cast.ToString(pick(row, "symbol")),
		Side:       cast.ToString(pick(row, "side", "operation_type", "signal_type")),
		EntryPrice: cast.ToFloat64(pick(row, "entry_price", "price")),
		Amount:     cast.ToFloat64(pick(row, "amount", "amount_usdt", "quantity")),
		Pnl:        cast.ToFloat64(pick(row, "pnl", "actual_profit")),
		Status:     cast.ToString(pick(row, "status")),
		IsAuto:     cast.ToBool(pick(row, "is_auto")),
		// 无模式标记的行按实盘算：宁可让下游风控多算一笔
		IsDemo: cast.ToBool(pick(row, "is_demo", "demo")),
	}

	if v := pick(row, "current_price"); v != nil {
		price := cast.ToFloat64(v)
		pos.CurrentPrice = &price
	}

	if v := pick(row, "created_at"); v != nil {
		if t, err := cast.ToTimeE(v); err == nil {
			pos.CreatedAt = &t
		}
	}

	return pos
}

// pick 按优先级返回第一个存在且非 nil 的字段值
func pick(row map[string]any, keys ...string) any {
	for _, key := range keys {
		if v, ok := row[key]; ok && v != nil {
			return v
		}
	}
	return nil
}
