package repo

import (
	"context"

	"github.com/google/uuid"

	"github.com/Skotchmaster/online_catalog/internal/models"
)

type ProductFilter struct {
	Category string
}

func (r *GormRepo) CreateProduct(ctx context.Context, prod *models.Product) error {
	return dbError(r.DB.WithContext(ctx).Create(prod).Error, ErrProductNotFound, "cannot create product")
}

func (r *GormRepo) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&product).Error; err != nil {
		return nil, dbError(err, ErrProductNotFound, "cannot get product")
	}
	return &product, nil
}

// ListProducts returns products newest first.
func (r *GormRepo) ListProducts(ctx context.Context, f ProductFilter) ([]models.Product, error) {
	tx := r.DB.WithContext(ctx).Model(&models.Product{})
	if f.Category != "" {
		tx = tx.Where("category = ?", f.Category)
	}
	items := make([]models.Product, 0)
	if err := tx.Order("created_at DESC").Find(&items).Error; err != nil {
		return nil, dbError(err, ErrProductNotFound, "cannot list products")
	}
	return items, nil
}

// UpdateProduct writes only the named fields of prod.
func (r *GormRepo) UpdateProduct(ctx context.Context, prod *models.Product, fields ...string) error {
	res := r.DB.WithContext(ctx).Model(prod).Select(withUpdatedAt(fields)).Updates(prod)
	if res.Error != nil {
		return dbError(res.Error, ErrProductNotFound, "cannot update product")
	}
	if res.RowsAffected == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (r *GormRepo) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	res := r.DB.WithContext(ctx).Delete(&models.Product{}, "id = ?", id)
	if res.Error != nil {
		return dbError(res.Error, ErrProductNotFound, "cannot delete product")
	}
	if res.RowsAffected == 0 {
		return ErrProductNotFound
	}
	return nil
}
