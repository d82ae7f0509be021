package httpserver

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/sugarsphere/backend/internal/models"
	"github.com/sugarsphere/backend/internal/service"
)

type ProductHandler struct {
	Catalog *service.CatalogService
}

func pathID(c echo.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return uint(id), nil
}

func queryInt(c echo.Context, name string, fallback int) int {
	v, err := strconv.Atoi(c.QueryParam(name))
	if err != nil {
		return fallback
	}
	return v
}

func queryFloat(c echo.Context, name string) float64 {
	v, _ := strconv.ParseFloat(c.QueryParam(name), 64)
	return v
}

func (h *ProductHandler) List(c echo.Context) error {
	isAdmin := currentUser(c) != nil && currentUser(c).Role == models.RoleAdmin
	q := service.ListProductsQuery{
		Category:        c.QueryParam("category"),
		MinPrice:        queryFloat(c, "min_price"),
		MaxPrice:        queryFloat(c, "max_price"),
		Sort:            c.QueryParam("sort"),
		Page:            queryInt(c, "page", 1),
		Limit:           queryInt(c, "limit", 10),
		IncludeInactive: isAdmin && c.QueryParam("include_inactive") == "true",
	}
	products, pg, err := h.Catalog.List(c.Request().Context(), q)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "", echo.Map{"products": products, "pagination": pg})
}

func (h *ProductHandler) Get(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	isAdmin := currentUser(c) != nil && currentUser(c).Role == models.RoleAdmin
	product, err := h.Catalog.Get(c.Request().Context(), id, isAdmin)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "", product)
}

func (h *ProductHandler) Search(c echo.Context) error {
	query := c.QueryParam("q")
	if query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q is required")
	}
	total, products, err := h.Catalog.Search(c.Request().Context(), query, queryInt(c, "page", 1), queryInt(c, "limit", 10))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "", echo.Map{"total": total, "products": products})
}

func (h *ProductHandler) Create(c echo.Context) error {
	var in service.ProductInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	product, err := h.Catalog.Create(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, "product created", product)
}

func (h *ProductHandler) Update(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var in service.ProductInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	product, err := h.Catalog.Update(c.Request().Context(), id, in)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "product updated", product)
}

func (h *ProductHandler) Delete(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.Catalog.Delete(c.Request().Context(), id); err != nil {
		return err
	}
	return respond(c, http.StatusOK, "product deleted", nil)
}

type restockRequest struct {
	Quantity int    `json:"quantity"`
	Note     string `json:"note"`
}

func (h *ProductHandler) Restock(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req restockRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	product, err := h.Catalog.Restock(c.Request().Context(), currentUser(c).ID, id, req.Quantity, req.Note)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "stock updated", product)
}
