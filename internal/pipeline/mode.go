package pipeline

import "strings"

// AccountMode 账户模式
// 模拟盘（DEMO/TEST）的信号由模拟器处理，实盘管道直接放行不做任何写入
type AccountMode string

const (
	ModeDemo AccountMode = "DEMO"
	ModeTest AccountMode = "TEST"
	ModeReal AccountMode = "REAL"
)

// ParseAccountMode 解析模式值，大小写不敏感
// 未知/空值一律按实盘处理：宁可多跑一遍风控，也不能静默跳过
func ParseAccountMode(raw string) AccountMode {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "DEMO":
		return ModeDemo
	case "TEST":
		return ModeTest
	default:
		return ModeReal
	}
}

// IsDemo 是否模拟盘
func (m AccountMode) IsDemo() bool {
	return m == ModeDemo || m == ModeTest
}
