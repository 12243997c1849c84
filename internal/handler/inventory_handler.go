package handler

import (
	"net/http"
	"strconv"

	"github.com/Bree-codes/SuperMartConnect/internal/config"
	"github.com/Bree-codes/SuperMartConnect/internal/middleware"
	"github.com/Bree-codes/SuperMartConnect/internal/usecase"

	"github.com/labstack/echo/v4"
)

// /api/inventoryのHTTP
type InventoryHandler struct {
	uc *usecase.InventoryUsecase
}

// DI
func NewInventoryHandler(uc *usecase.InventoryUsecase) *InventoryHandler {
	return &InventoryHandler{uc: uc}
}

type SetStockRequest struct {
	Stock  int64  `json:"stock"`
	Reason string `json:"reason"`
}

type RestockRequest struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

func (h *InventoryHandler) RegisterRoutes(e *echo.Echo, cfg config.Config) {
	g := e.Group("/api/inventory")
	g.Use(middleware.AuthJWT(cfg))

	g.GET("", h.list)
	g.GET("/:id/stock", h.getStock)

	admin := g.Group("")
	admin.Use(middleware.AdminRoleGuard())
	admin.PUT("/:id/stock", h.setStock)
	admin.POST("/:id/restock", h.restock)
}

func (h *InventoryHandler) list(c echo.Context) error {
	branch := c.QueryParam("branch")

	items, err := h.uc.ListInventory(c.Request().Context(), branch)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, items)
}

func (h *InventoryHandler) getStock(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	stock, err := h.uc.GetStock(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]int64{"item_id": id, "stock": stock})
}

func (h *InventoryHandler) setStock(c echo.Context) error {
	adminID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	var req SetStockRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	item, err := h.uc.SetStock(c.Request().Context(), adminID, id, usecase.SetStockInput{
		NewStock:  req.Stock,
		Reason:    req.Reason,
		SessionID: c.Request().Header.Get("X-Session-ID"),
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, item)
}

func (h *InventoryHandler) restock(c echo.Context) error {
	adminID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	var req RestockRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	item, err := h.uc.Restock(c.Request().Context(), adminID, id, usecase.RestockInput{
		Amount:    req.Amount,
		Reason:    req.Reason,
		SessionID: c.Request().Header.Get("X-Session-ID"),
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, item)
}
