package payment

import (
	"context"
	"errors"
	"time"
)

type Outcome string

const (
	OutcomeConfirmed Outcome = "CONFIRMED"
	OutcomeDeclined  Outcome = "DECLINED"
)

var (
	// 確認待ちが上限を超えた。DECLINEDとは区別して返す。
	ErrConfirmationTimeout = errors.New("payment confirmation timeout")

	ErrUnknownReference = errors.New("unknown payment reference")
)

// 外部決済サービスの約束。STK pushを発行し、非同期の確認を待つ。
type Service interface {
	// 支払い要求を発行してreference（CheckoutRequestID相当）を返す
	InitiateSTKPush(ctx context.Context, payee string, amount int64, description string) (string, error)

	// referenceの確認結果を待つ。timeout超過はErrConfirmationTimeout。
	AwaitConfirmation(ctx context.Context, ref string, timeout time.Duration) (Outcome, error)
}
