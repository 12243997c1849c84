package model

import "time"

type CheckoutLineStatus string

const (
	LineStatusSettled     CheckoutLineStatus = "SETTLED"
	LineStatusFailed      CheckoutLineStatus = "FAILED"
	LineStatusUnattempted CheckoutLineStatus = "UNATTEMPTED"
)

// 精算の明細。行は送信順に処理され、部分失敗レポートの単位になる。
// 価格は精算時点のスナップショット。
type CheckoutLine struct {
	ID                int64              `gorm:"primaryKey;autoIncrement" json:"id"`
	CheckoutID        int64              `gorm:"not null;index" json:"checkout_id"`
	ItemID            int64              `gorm:"not null;index" json:"item_id"`
	Branch            string             `gorm:"type:varchar(50);not null" json:"branch"`
	Product           string             `gorm:"type:varchar(255);not null" json:"product"`
	UnitPriceSnapshot int64              `gorm:"not null" json:"unit_price_snapshot"`
	Quantity          int64              `gorm:"not null" json:"quantity"`
	Status            CheckoutLineStatus `gorm:"type:varchar(20);not null" json:"status"`
	FailDetail        string             `gorm:"type:varchar(255)" json:"fail_detail,omitempty"`
	CreatedAt         time.Time          `gorm:"not null;autoCreateTime" json:"created_at"`
}
