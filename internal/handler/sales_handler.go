package handler

import (
	"net/http"
	"strconv"

	"github.com/Bree-codes/SuperMartConnect/internal/config"
	"github.com/Bree-codes/SuperMartConnect/internal/middleware"
	"github.com/Bree-codes/SuperMartConnect/internal/usecase"

	"github.com/labstack/echo/v4"
)

// /api/salesのHTTP（管理者のみ）
type SalesHandler struct {
	uc *usecase.ReportUsecase
}

// DI
func NewSalesHandler(uc *usecase.ReportUsecase) *SalesHandler {
	return &SalesHandler{uc: uc}
}

func (h *SalesHandler) RegisterRoutes(e *echo.Echo, cfg config.Config) {
	g := e.Group("/api/sales")
	g.Use(middleware.AuthJWT(cfg))
	g.Use(middleware.AdminRoleGuard())

	g.GET("", h.list)
	g.GET("/report", h.report)
}

func (h *SalesHandler) list(c echo.Context) error {
	limit := 0
	if v := c.QueryParam("limit"); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
		}
		limit = l
	}

	sales, err := h.uc.ListSales(c.Request().Context(), limit)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, sales)
}

func (h *SalesHandler) report(c echo.Context) error {
	out, err := h.uc.Report(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, out)
}
