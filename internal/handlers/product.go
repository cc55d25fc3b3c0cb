package handlers

import (
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/online_catalog/internal/apperr"
	"github.com/Skotchmaster/online_catalog/internal/files"
	"github.com/Skotchmaster/online_catalog/internal/logging"
	"github.com/Skotchmaster/online_catalog/internal/service"
)

// ImagesField is the multipart field carrying product images.
const ImagesField = "images"

type ProductHandler struct {
	Catalog *service.CatalogService
}

func NewProductHandler(catalog *service.CatalogService) *ProductHandler {
	return &ProductHandler{Catalog: catalog}
}

func (h *ProductHandler) GetProduct(c echo.Context) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	p, err := h.Catalog.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return ok(c, "", p)
}

func (h *ProductHandler) GetProducts(c echo.Context) error {
	items, err := h.Catalog.List(c.Request().Context(), c.QueryParam("category"))
	if err != nil {
		return err
	}
	return ok(c, "", items)
}

func (h *ProductHandler) CreateProduct(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return apperr.Wrap(apperr.Validation, "multipart form with images is required", err)
	}

	var in service.ProductInput
	in.Name = formValue(form, "name")
	in.Description = formValue(form, "description")
	in.Category = formValue(form, "category")
	if in.Price, err = parseFloat(form, "price"); err != nil {
		return err
	}
	if in.Stock, err = parseInt(form, "stock"); err != nil {
		return err
	}

	uploads, closeAll, err := openUploads(form)
	if err != nil {
		return err
	}
	defer closeAll()

	p, err := h.Catalog.Create(c.Request().Context(), in, uploads)
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, "product created", p)
}

// PatchProduct accepts either a multipart form (fields plus optional images)
// or a JSON body with the fields to change.
func (h *ProductHandler) PatchProduct(c echo.Context) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	var (
		patch   service.ProductPatch
		uploads []files.Upload
	)
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		form, err := c.MultipartForm()
		if err != nil {
			return apperr.Wrap(apperr.Validation, "invalid multipart form", err)
		}
		if patch, err = patchFromForm(form); err != nil {
			return err
		}
		var closeAll func()
		if uploads, closeAll, err = openUploads(form); err != nil {
			return err
		}
		defer closeAll()
	} else if err := bind(c, &patch); err != nil {
		return err
	}

	p, err := h.Catalog.Update(c.Request().Context(), id, patch, uploads)
	if err != nil {
		if apperr.KindOf(err) == apperr.Internal {
			logging.FromContext(c.Request().Context()).Error("product_patch_error",
				"product_id", id, "error", err)
		}
		return err
	}
	return ok(c, "product updated", p)
}

func (h *ProductHandler) DeleteProduct(c echo.Context) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	if err := h.Catalog.Delete(c.Request().Context(), id); err != nil {
		return err
	}
	return ok(c, "product deleted", nil)
}

func formValue(form *multipart.Form, key string) string {
	if v := form.Value[key]; len(v) > 0 {
		return strings.TrimSpace(v[0])
	}
	return ""
}

func optional(form *multipart.Form, key string) *string {
	if _, ok := form.Value[key]; !ok {
		return nil
	}
	v := formValue(form, key)
	return &v
}

func parseFloat(form *multipart.Form, key string) (float64, error) {
	v, err := strconv.ParseFloat(formValue(form, key), 64)
	if err != nil {
		return 0, apperr.Validationf(key + " must be a number")
	}
	return v, nil
}

func parseInt(form *multipart.Form, key string) (int, error) {
	v, err := strconv.Atoi(formValue(form, key))
	if err != nil {
		return 0, apperr.Validationf(key + " must be an integer")
	}
	return v, nil
}

func patchFromForm(form *multipart.Form) (service.ProductPatch, error) {
	patch := service.ProductPatch{
		Name:        optional(form, "name"),
		Description: optional(form, "description"),
		Category:    optional(form, "category"),
	}
	if _, ok := form.Value["price"]; ok {
		v, err := parseFloat(form, "price")
		if err != nil {
			return patch, err
		}
		patch.Price = &v
	}
	if _, ok := form.Value["stock"]; ok {
		v, err := parseInt(form, "stock")
		if err != nil {
			return patch, err
		}
		patch.Stock = &v
	}
	return patch, nil
}

// openUploads opens every file under ImagesField. The returned func closes them.
func openUploads(form *multipart.Form) ([]files.Upload, func(), error) {
	headers := form.File[ImagesField]
	opened := make([]multipart.File, 0, len(headers))
	closeAll := func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}

	uploads := make([]files.Upload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			closeAll()
			return nil, func() {}, apperr.Wrap(apperr.Validation, "cannot read uploaded file", err)
		}
		opened = append(opened, f)
		uploads = append(uploads, files.Upload{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get(echo.HeaderContentType),
			Body:        f,
		})
	}
	return uploads, closeAll, nil
}
