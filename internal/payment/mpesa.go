package payment

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/Bree-codes/SuperMartConnect/internal/config"

	"go.uber.org/zap"
)

// Daraja STK pushクライアント。
// 確認はコールバック（/api/mpesa/callback）経由で非同期に届くので、
// reference毎の待ち受けチャネルをここで持つ。
type MpesaClient struct {
	cfg    config.Config
	http   *http.Client
	logger *zap.Logger

	mu      sync.Mutex
	pending map[string]chan Outcome

	// アクセストークンのキャッシュ
	token       string
	tokenExpiry time.Time
}

func NewMpesaClient(cfg config.Config, logger *zap.Logger) *MpesaClient {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return &MpesaClient{
		cfg:     cfg,
		http:    &http.Client{Timeout: 15 * time.Second},
		logger:  logger,
		pending: make(map[string]chan Outcome),
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

func (c *MpesaClient) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		tok := c.token
		c.mu.Unlock()
		return tok, nil
	}
	c.mu.Unlock()

	url := c.cfg.MpesaBaseURL + "/oauth/v1/generate?grant_type=client_credentials"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.cfg.MpesaConsumerKey, c.cfg.MpesaConsumerSecret)

	res, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("mpesa token request failed: status %d", res.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(res.Body).Decode(&tr); err != nil {
		return "", err
	}

	ttl := int64(3600)
	if v, err := strconv.ParseInt(tr.ExpiresIn, 10, 64); err == nil {
		ttl = v
	}

	c.mu.Lock()
	c.token = tr.AccessToken
	// 失効ぎりぎりを避けて1分手前で更新
	c.tokenExpiry = time.Now().Add(time.Duration(ttl-60) * time.Second)
	c.mu.Unlock()

	return tr.AccessToken, nil
}

type stkPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            string `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type stkPushResponse struct {
	CheckoutRequestID string `json:"CheckoutRequestID"`
	ResponseCode      string `json:"ResponseCode"`
	ResponseDesc      string `json:"ResponseDescription"`
}

func (c *MpesaClient) InitiateSTKPush(ctx context.Context, payee string, amount int64, description string) (string, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return "", err
	}

	ts := time.Now().Format("20060102150405")
	password := darajaPassword(c.cfg.MpesaShortcode, c.cfg.MpesaPasskey, ts)

	body := stkPushRequest{
		BusinessShortCode: c.cfg.MpesaShortcode,
		Password:          password,
		Timestamp:         ts,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            strconv.FormatInt(amount, 10),
		PartyA:            payee,
		PartyB:            c.cfg.MpesaShortcode,
		PhoneNumber:       payee,
		CallBackURL:       c.cfg.MpesaCallbackURL,
		AccountReference:  "SuperMartConnect",
		TransactionDesc:   description,
	}

	buf, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	url := c.cfg.MpesaBaseURL + "/mpesa/stkpush/v1/processrequest"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	var sr stkPushResponse
	if err := json.NewDecoder(res.Body).Decode(&sr); err != nil {
		return "", err
	}
	if res.StatusCode != http.StatusOK || sr.ResponseCode != "0" {
		return "", fmt.Errorf("stk push rejected: %s", sr.ResponseDesc)
	}

	c.mu.Lock()
	c.pending[sr.CheckoutRequestID] = make(chan Outcome, 1)
	c.mu.Unlock()

	c.logger.Info("stk push initiated",
		zap.String("checkout_request_id", sr.CheckoutRequestID),
		zap.Int64("amount", amount),
	)

	return sr.CheckoutRequestID, nil
}

// AwaitConfirmationはコールバック到着かtimeoutまでブロックする。
// timeoutはFailed扱い（Completeにしない）。
func (c *MpesaClient) AwaitConfirmation(ctx context.Context, ref string, timeout time.Duration) (Outcome, error) {
	c.mu.Lock()
	ch, ok := c.pending[ref]
	c.mu.Unlock()
	if !ok {
		return "", ErrUnknownReference
	}

	defer func() {
		c.mu.Lock()
		delete(c.pending, ref)
		c.mu.Unlock()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case outcome := <-ch:
		return outcome, nil
	case <-timer.C:
		return "", ErrConfirmationTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// ResolveCallbackはDarajaコールバックの結果を待っている精算へ渡す。
// ResultCode 0が成功、それ以外は拒否。
func (c *MpesaClient) ResolveCallback(ref string, resultCode int) error {
	c.mu.Lock()
	ch, ok := c.pending[ref]
	c.mu.Unlock()
	if !ok {
		// 待ち手のいない（timeout済み等の）コールバックは捨てる
		return ErrUnknownReference
	}

	outcome := OutcomeDeclined
	if resultCode == 0 {
		outcome = OutcomeConfirmed
	}

	select {
	case ch <- outcome:
	default:
	}

	c.logger.Info("mpesa callback resolved",
		zap.String("checkout_request_id", ref),
		zap.Int("result_code", resultCode),
	)
	return nil
}

func darajaPassword(shortcode, passkey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortcode + passkey + timestamp))
}
