package model

import "time"

type CheckoutStatus string

const (
	CheckoutStatusAwaitingPayment   CheckoutStatus = "AWAITING_PAYMENT"
	CheckoutStatusPaymentConfirming CheckoutStatus = "PAYMENT_CONFIRMING"
	CheckoutStatusSettling          CheckoutStatus = "SETTLING"
	CheckoutStatusComplete          CheckoutStatus = "COMPLETE"
	CheckoutStatusPartiallySettled  CheckoutStatus = "PARTIALLY_SETTLED"
	CheckoutStatusFailed            CheckoutStatus = "FAILED"
)

// 失敗理由は区別して残す（テレメトリ用）
type CheckoutFailReason string

const (
	FailReasonDeclined CheckoutFailReason = "DECLINED"
	FailReasonTimeout  CheckoutFailReason = "TIMEOUT"
	FailReasonCanceled CheckoutFailReason = "CANCELED"
)

// 1回の精算。IdempotencyKeyで再送を弾く。
type Checkout struct {
	ID             int64              `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID         int64              `gorm:"not null;index" json:"user_id"`
	Status         CheckoutStatus     `gorm:"type:varchar(30);not null;index" json:"status"`
	Payee          string             `gorm:"type:varchar(30);not null" json:"payee"`
	TotalAmount    int64              `gorm:"not null" json:"total_amount"`
	PaymentRef     string             `gorm:"type:varchar(100)" json:"payment_ref"`
	FailReason     CheckoutFailReason `gorm:"type:varchar(20)" json:"fail_reason,omitempty"`
	IdempotencyKey string             `gorm:"type:varchar(255);not null;uniqueIndex" json:"-"`
	CreatedAt      time.Time          `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time          `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
