package handler

import (
	"net/http"

	"github.com/Bree-codes/SuperMartConnect/internal/payment"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Daraja確認コールバックの受け口。プロバイダ向けで認証なし。
type MpesaHandler struct {
	client *payment.MpesaClient
	logger *zap.Logger
}

func NewMpesaHandler(client *payment.MpesaClient, logger *zap.Logger) *MpesaHandler {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return &MpesaHandler{client: client, logger: logger}
}

func (h *MpesaHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/api/mpesa/callback", h.callback)
}

// Darajaのコールバックbody
type mpesaCallbackRequest struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        int    `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

func (h *MpesaHandler) callback(c echo.Context) error {
	var req mpesaCallbackRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	cb := req.Body.StkCallback
	if cb.CheckoutRequestID == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "missing CheckoutRequestID"})
	}

	if err := h.client.ResolveCallback(cb.CheckoutRequestID, cb.ResultCode); err != nil {
		// 待ち手がいない（timeout済み等）。Darajaには成功で返す。
		h.logger.Warn("unmatched mpesa callback",
			zap.String("checkout_request_id", cb.CheckoutRequestID),
			zap.Int("result_code", cb.ResultCode),
		)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{"ResultCode": 0, "ResultDesc": "Accepted"})
}
