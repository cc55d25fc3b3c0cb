package service

import (
	"context"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Skotchmaster/online_catalog/internal/apperr"
	"github.com/Skotchmaster/online_catalog/internal/cache"
	"github.com/Skotchmaster/online_catalog/internal/events"
	"github.com/Skotchmaster/online_catalog/internal/files"
	"github.com/Skotchmaster/online_catalog/internal/logging"
	"github.com/Skotchmaster/online_catalog/internal/models"
	"github.com/Skotchmaster/online_catalog/internal/repo"
	"github.com/Skotchmaster/online_catalog/internal/util"
)

const maxImages = 5

var allowedImageExt = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".pdf": true}

type ProductStore interface {
	CreateProduct(ctx context.Context, p *models.Product) error
	GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	ListProducts(ctx context.Context, f repo.ProductFilter) ([]models.Product, error)
	UpdateProduct(ctx context.Context, p *models.Product, fields ...string) error
	DeleteProduct(ctx context.Context, id uuid.UUID) error
}

type ProductInput struct {
	Name        string  `json:"name"        validate:"required,min=3,max=100"`
	Description string  `json:"description" validate:"required,min=10,max=1000"`
	Price       float64 `json:"price"       validate:"gt=0,lte=1000000"`
	Stock       int     `json:"stock"       validate:"gte=0,lte=100000"`
	Category    string  `json:"category"    validate:"required,min=3,max=50"`
}

// ProductPatch carries only the fields being changed.
type ProductPatch struct {
	Name        *string  `json:"name"        validate:"omitempty,min=3,max=100"`
	Description *string  `json:"description" validate:"omitempty,min=10,max=1000"`
	Price       *float64 `json:"price"       validate:"omitempty,gt=0,lte=1000000"`
	Stock       *int     `json:"stock"       validate:"omitempty,gte=0,lte=100000"`
	Category    *string  `json:"category"    validate:"omitempty,min=3,max=50"`
}

// normalize trims text fields and lower-cases the category so that
// validation sees the values that will be stored.
func (p *ProductPatch) normalize() {
	trim := func(v *string) *string {
		if v == nil {
			return nil
		}
		t := strings.TrimSpace(*v)
		return &t
	}
	p.Name = trim(p.Name)
	p.Description = trim(p.Description)
	if c := trim(p.Category); c != nil {
		lc := strings.ToLower(*c)
		p.Category = &lc
	}
}

func (p ProductPatch) empty() bool {
	return p.Name == nil && p.Description == nil && p.Price == nil && p.Stock == nil && p.Category == nil
}

type SearchResult struct {
	Total int64            `json:"total"`
	Page  int              `json:"page"`
	Size  int              `json:"size"`
	Items []models.Product `json:"products"`
}

type CatalogDeps struct {
	Store       ProductStore
	Cache       cache.Store
	Invalidator *cache.Invalidator
	Files       *files.Manager
	Events      events.Publisher
	// Search is optional.
	Search   Indexer
	CacheTTL time.Duration
	// SideEffectTimeout bounds each post-commit step.
	SideEffectTimeout time.Duration
}

type CatalogService struct {
	store  ProductStore
	cache  cache.Store
	inv    *cache.Invalidator
	files  *files.Manager
	search Indexer
	ttl    time.Duration
	after  sideEffects
}

func NewCatalogService(d CatalogDeps) *CatalogService {
	return &CatalogService{
		store:  d.Store,
		cache:  d.Cache,
		inv:    d.Invalidator,
		files:  d.Files,
		search: d.Search,
		ttl:    d.CacheTTL,
		after:  newSideEffects(d.Events, d.SideEffectTimeout),
	}
}

func validateUploads(uploads []files.Upload, min int) error {
	if len(uploads) < min {
		return apperr.Validationf("at least one product image is required")
	}
	if len(uploads) > maxImages {
		return apperr.Validationf("cannot upload more than 5 images")
	}
	for _, u := range uploads {
		if !allowedImageExt[strings.ToLower(path.Ext(u.Filename))] {
			return apperr.Validationf("images must be .jpg, .jpeg, .png or .pdf")
		}
	}
	return nil
}

func (s *CatalogService) Create(ctx context.Context, in ProductInput, uploads []files.Upload) (*models.Product, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	in.Category = strings.ToLower(strings.TrimSpace(in.Category))
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if err := validateUploads(uploads, 1); err != nil {
		return nil, err
	}

	p := &models.Product{
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price,
		Stock:       in.Stock,
		Category:    in.Category,
	}
	_, err := s.files.Create(ctx, uploads, func(ctx context.Context, refs []string) error {
		p.Images = refs
		if err := s.store.CreateProduct(ctx, p); err != nil {
			return err
		}
		s.inv.Invalidate(ctx, cache.ProductCreated, p.ID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterWrite(ctx, events.ProductCreated, p)
	return p, nil
}

// Get reads through product:{id}. A missing product is never cached.
func (s *CatalogService) Get(ctx context.Context, id uuid.UUID) (models.Product, error) {
	return cache.Fetch(ctx, s.cache, cache.ProductKey(id), s.ttl, func(ctx context.Context) (models.Product, error) {
		p, err := s.store.GetProduct(ctx, id)
		if err != nil {
			return models.Product{}, err
		}
		return *p, nil
	})
}

// List returns products newest first. Only the unfiltered list is cached.
func (s *CatalogService) List(ctx context.Context, category string) ([]models.Product, error) {
	category = strings.ToLower(strings.TrimSpace(category))
	if category != "" {
		return s.store.ListProducts(ctx, repo.ProductFilter{Category: category})
	}
	return cache.Fetch(ctx, s.cache, cache.AllProductsKey, s.ttl, func(ctx context.Context) ([]models.Product, error) {
		return s.store.ListProducts(ctx, repo.ProductFilter{})
	})
}

// Update applies patch and, when uploads are given, replaces the images:
// new files are written, the record is committed, then the old files go.
func (s *CatalogService) Update(ctx context.Context, id uuid.UUID, patch ProductPatch, uploads []files.Upload) (*models.Product, error) {
	patch.normalize()
	if err := validateStruct(patch); err != nil {
		return nil, err
	}
	if patch.empty() && len(uploads) == 0 {
		return nil, apperr.Validationf("nothing to update")
	}
	if len(uploads) > 0 {
		if err := validateUploads(uploads, 0); err != nil {
			return nil, err
		}
	}

	p, err := s.store.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	fields := applyPatch(p, patch)

	commit := func(ctx context.Context) error {
		if err := s.store.UpdateProduct(ctx, p, fields...); err != nil {
			return err
		}
		s.inv.Invalidate(ctx, cache.ProductUpdated, id)
		return nil
	}

	if len(uploads) == 0 {
		if err := commit(ctx); err != nil {
			return nil, err
		}
		s.afterWrite(ctx, events.ProductUpdated, p)
		return p, nil
	}

	refs, err := s.files.Replace(ctx, p.Images, uploads, func(ctx context.Context, refs []string) error {
		p.Images = refs
		fields = append(fields, "Images")
		return commit(ctx)
	})
	if refs == nil {
		return nil, err
	}
	s.afterWrite(ctx, events.ProductUpdated, p)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func applyPatch(p *models.Product, patch ProductPatch) []string {
	var fields []string
	if patch.Name != nil {
		p.Name = *patch.Name
		fields = append(fields, "Name")
	}
	if patch.Description != nil {
		p.Description = *patch.Description
		fields = append(fields, "Description")
	}
	if patch.Price != nil {
		p.Price = *patch.Price
		fields = append(fields, "Price")
	}
	if patch.Stock != nil {
		p.Stock = *patch.Stock
		fields = append(fields, "Stock")
	}
	if patch.Category != nil {
		p.Category = *patch.Category
		fields = append(fields, "Category")
	}
	return fields
}

// Delete removes the record, then its files. File failures are returned
// after every file was attempted; the record stays deleted.
func (s *CatalogService) Delete(ctx context.Context, id uuid.UUID) error {
	p, err := s.store.GetProduct(ctx, id)
	if err != nil {
		return err
	}

	removed := false
	err = s.files.Delete(ctx, p.Images, func(ctx context.Context) error {
		if err := s.store.DeleteProduct(ctx, id); err != nil {
			return err
		}
		removed = true
		s.inv.Invalidate(ctx, cache.ProductDeleted, id)
		return nil
	})
	if removed {
		s.after.publish(ctx, events.ProductTopic, events.New(events.ProductDeleted, id.String(), nil))
		s.unindex(ctx, id)
	}
	return err
}

func (s *CatalogService) Search(ctx context.Context, query string, page, size int) (*SearchResult, error) {
	if s.search == nil {
		return nil, apperr.New(apperr.NotFound, "search is not available")
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperr.Validationf("query is required")
	}
	from, limit := util.Calculate(page, size)
	total, items, err := s.search.Search(ctx, query, from, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "search failed", err)
	}
	return &SearchResult{Total: total, Page: from/limit + 1, Size: limit, Items: items}, nil
}

func (s *CatalogService) afterWrite(ctx context.Context, typ string, p *models.Product) {
	s.after.publish(ctx, events.ProductTopic, events.New(typ, p.ID.String(), p))
	if s.search == nil {
		return
	}
	ictx, cancel := s.after.detach(ctx)
	defer cancel()
	if err := s.search.Index(ictx, p); err != nil {
		logging.FromContext(ctx).Warn("search_index_failed", "product_id", p.ID, "error", err)
	}
}

func (s *CatalogService) unindex(ctx context.Context, id uuid.UUID) {
	if s.search == nil {
		return
	}
	ictx, cancel := s.after.detach(ctx)
	defer cancel()
	if err := s.search.Remove(ictx, id); err != nil {
		logging.FromContext(ctx).Warn("search_remove_failed", "product_id", id, "error", err)
	}
}
