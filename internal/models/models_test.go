package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// TestAutoMigrate_AllModels 全部模型迁移进同一个库
// 索引名是库级作用域，跨表重名会让迁移直接失败
func TestAutoMigrate_AllModels(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:models_test?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&Signal{},
		&RiskSettings{},
		&TradingOperation{},
		&Position{},
		&ExchangeCredential{},
	)
	require.NoError(t, err)

	for _, table := range []string{
		Signal{}.TableName(),
		RiskSettings{}.TableName(),
		TradingOperation{}.TableName(),
		Position{}.TableName(),
		ExchangeCredential{}.TableName(),
	} {
		assert.True(t, db.Migrator().HasTable(table), "missing table %s", table)
	}
}
