package model

import "time"

// 売上イベント。作成後は不変、追記のみ（update/deleteはどこにもない）。
// ItemIDを必ず持ち、在庫との突き合わせは名前一致ではなくIDで行う。
type SaleEvent struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ItemID      int64     `gorm:"not null;index" json:"item_id"`
	Branch      string    `gorm:"type:varchar(50);not null;index" json:"branch"`
	Product     string    `gorm:"type:varchar(255);not null;index" json:"product"`
	Quantity    int64     `gorm:"not null" json:"quantity"`
	TotalAmount int64     `gorm:"not null" json:"total_amount"`
	CreatedAt   time.Time `gorm:"not null;autoCreateTime;index" json:"timestamp"`
}
