package handler

import (
	"net/http"
	"strconv"

	"github.com/Bree-codes/SuperMartConnect/internal/config"
	"github.com/Bree-codes/SuperMartConnect/internal/domain/model"
	"github.com/Bree-codes/SuperMartConnect/internal/middleware"
	"github.com/Bree-codes/SuperMartConnect/internal/usecase"

	"github.com/labstack/echo/v4"
)

// /api/checkoutのHTTP
type CheckoutHandler struct {
	uc *usecase.CheckoutUsecase
}

// DI
func NewCheckoutHandler(uc *usecase.CheckoutUsecase) *CheckoutHandler {
	return &CheckoutHandler{uc: uc}
}

type CheckoutLineRequest struct {
	ItemID   int64 `json:"item_id"`
	Quantity int64 `json:"quantity"`
}

type CheckoutRequest struct {
	Lines          []CheckoutLineRequest `json:"lines"`
	Payee          string                `json:"payee"`
	IdempotencyKey string                `json:"idempotency_key"`
}

func (h *CheckoutHandler) RegisterRoutes(e *echo.Echo, cfg config.Config) {
	g := e.Group("/api/checkout")
	g.Use(middleware.AuthJWT(cfg))

	g.POST("", h.checkout)
	g.POST("/:id/cancel", h.cancel)
}

func (h *CheckoutHandler) checkout(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	var req CheckoutRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	lines := make([]usecase.CheckoutLineInput, 0, len(req.Lines))
	for _, l := range req.Lines {
		lines = append(lines, usecase.CheckoutLineInput{ItemID: l.ItemID, Quantity: l.Quantity})
	}

	out, err := h.uc.Checkout(c.Request().Context(), userID, usecase.CheckoutInput{
		Lines:          lines,
		Payee:          req.Payee,
		IdempotencyKey: req.IdempotencyKey,
		SessionID:      c.Request().Header.Get("X-Session-ID"),
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(checkoutStatusCode(out.Status), out)
}

func (h *CheckoutHandler) cancel(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	out, err := h.uc.Cancel(c.Request().Context(), userID, id)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, out)
}

// 精算の結果をHTTPステータスに写す
func checkoutStatusCode(status string) int {
	switch model.CheckoutStatus(status) {
	case model.CheckoutStatusComplete:
		return http.StatusOK
	case model.CheckoutStatusPartiallySettled:
		return http.StatusMultiStatus
	case model.CheckoutStatusFailed:
		return http.StatusPaymentRequired
	default:
		return http.StatusOK
	}
}
