package config

import (
	"fmt"
	"os"
	"time"
)

// Configはアプリ全体の設定
type Config struct {
	Port string // サーバーポート（8080）

	JWTSecret string // JWT署名シークレット

	GoEnv string // dev/prod
	FEURL string // フロントURL（CORSで使う）

	// M-Pesa (Daraja) STK push
	MpesaBaseURL        string        // https://sandbox.safaricom.co.ke など
	MpesaConsumerKey    string        //
	MpesaConsumerSecret string        //
	MpesaShortcode      string        // 店舗番号
	MpesaPasskey        string        //
	MpesaCallbackURL    string        // 確認コールバックの受け口
	PaymentTimeout      time.Duration // STK確認待ちの上限。超過はFailed扱い。
}

// Loadは環境変数から設定を読む
func Load() (Config, error) {
	cfg := Config{
		Port: os.Getenv("PORT"),

		JWTSecret: os.Getenv("JWT_SECRET"),

		GoEnv: os.Getenv("GO_ENV"),
		FEURL: os.Getenv("FE_URL"),

		MpesaBaseURL:        os.Getenv("MPESA_BASE_URL"),
		MpesaConsumerKey:    os.Getenv("MPESA_CONSUMER_KEY"),
		MpesaConsumerSecret: os.Getenv("MPESA_CONSUMER_SECRET"),
		MpesaShortcode:      os.Getenv("MPESA_SHORTCODE"),
		MpesaPasskey:        os.Getenv("MPESA_PASSKEY"),
		MpesaCallbackURL:    os.Getenv("MPESA_CALLBACK_URL"),
	}

	if v := os.Getenv("PAYMENT_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("PAYMENT_TIMEOUT must be a duration: %w", err)
		}
		cfg.PaymentTimeout = d
	} else {
		cfg.PaymentTimeout = 90 * time.Second
	}

	//必須チェック
	if cfg.Port == "" {
		return Config{}, fmt.Errorf("PORT is required")
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.GoEnv == "" {
		return Config{}, fmt.Errorf("GO_ENV is required")
	}
	if cfg.MpesaBaseURL == "" {
		return Config{}, fmt.Errorf("MPESA_BASE_URL is required")
	}
	if cfg.MpesaConsumerKey == "" {
		return Config{}, fmt.Errorf("MPESA_CONSUMER_KEY is required")
	}
	if cfg.MpesaConsumerSecret == "" {
		return Config{}, fmt.Errorf("MPESA_CONSUMER_SECRET is required")
	}
	if cfg.MpesaShortcode == "" {
		return Config{}, fmt.Errorf("MPESA_SHORTCODE is required")
	}
	if cfg.MpesaPasskey == "" {
		return Config{}, fmt.Errorf("MPESA_PASSKEY is required")
	}
	if cfg.MpesaCallbackURL == "" {
		return Config{}, fmt.Errorf("MPESA_CALLBACK_URL is required")
	}

	return cfg, nil
}
