package dao

import (
	"sync"

	"gorm.io/gorm"

	"github.com/utrading/utrading-signal-executor/internal/models"
)

type CredentialDAO struct {
	db *gorm.DB
}

var (
	_credential     *CredentialDAO
	_credentialOnce sync.Once
)

// InitCredentialDAO 初始化 CredentialDAO
func InitCredentialDAO(db *gorm.DB) {
	_credentialOnce.Do(func() {
		_credential = NewCredentialDAO(db)
	})
}

// NewCredentialDAO 创建独立实例（测试用，线上走单例）
func NewCredentialDAO(db *gorm.DB) *CredentialDAO {
	return &CredentialDAO{db: db}
}

// Credential 获取 CredentialDAO 单例
func Credential() *CredentialDAO {
	return _credential
}

// GetActive 获取用户当前启用的凭证
// 多条 active 时取最近更新的一条
func (d *CredentialDAO) GetActive(userID int64) (*models.ExchangeCredential, error) {
	var cred models.ExchangeCredential
	err := d.db.
		Where("user_id = ? AND is_active = ?", userID, true).
		Order("updated_at DESC").
		First(&cred).Error
	if err != nil {
		return nil, err
	}
	return &cred, nil
}
