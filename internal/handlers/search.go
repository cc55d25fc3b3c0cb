package handlers

import (
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/online_catalog/internal/util"
)

func (h *ProductHandler) Search(c echo.Context) error {
	page := util.ParseIntDefault(c.QueryParam("page"), 1)
	size := util.ParseIntDefault(c.QueryParam("size"), util.DefaultPageSize)

	res, err := h.Catalog.Search(c.Request().Context(), c.QueryParam("q"), page, size)
	if err != nil {
		return err
	}
	return ok(c, "", res)
}
