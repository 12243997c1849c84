package model

import (
	"time"

	"gorm.io/gorm"
)

// 支店は固定の集合
var Branches = []string{"Nairobi", "Kisumu", "Mombasa", "Nakuru", "Eldoret"}

func IsValidBranch(branch string) bool {
	for _, b := range Branches {
		if b == branch {
			return true
		}
	}
	return false
}

// 支店ごとの在庫。stockは常に0以上。
// (branch, product)の組は一意でなくてよいが、IDは常に一意。
type InventoryItem struct {
	ID        int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	Branch    string         `gorm:"type:varchar(50);not null;index" json:"branch"`
	Product   string         `gorm:"type:varchar(255);not null;index" json:"product"`
	Price     int64          `gorm:"not null" json:"price"`
	Stock     int64          `gorm:"not null" json:"stock"`
	CreatedAt time.Time      `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
