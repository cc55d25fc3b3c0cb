package repo

import (
	"context"

	"github.com/google/uuid"

	"github.com/Skotchmaster/online_catalog/internal/models"
)

func (r *GormRepo) CreateUserIfNotExists(ctx context.Context, u *models.User) error {
	taken, err := r.EmailTaken(ctx, u.Email, uuid.Nil)
	if err != nil {
		return err
	}
	if taken {
		return ErrEmailTaken
	}
	return dbError(r.DB.WithContext(ctx).Create(u).Error, ErrUserNotFound, "cannot create user")
}

// EmailTaken reports whether another user (not except) already owns email.
func (r *GormRepo) EmailTaken(ctx context.Context, email string, except uuid.UUID) (bool, error) {
	var count int64
	tx := r.DB.WithContext(ctx).Model(&models.User{}).Where("email = ?", email)
	if except != uuid.Nil {
		tx = tx.Where("id <> ?", except)
	}
	if err := tx.Count(&count).Error; err != nil {
		return false, dbError(err, ErrUserNotFound, "cannot check email")
	}
	return count > 0, nil
}

func (r *GormRepo) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, dbError(err, ErrUserNotFound, "cannot get user")
	}
	return &user, nil
}

func (r *GormRepo) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.DB.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, dbError(err, ErrUserNotFound, "cannot get user")
	}
	return &user, nil
}

func (r *GormRepo) GetUserByVerificationToken(ctx context.Context, token string) (*models.User, error) {
	var user models.User
	if err := r.DB.WithContext(ctx).Where("verification_token = ?", token).First(&user).Error; err != nil {
		return nil, dbError(err, ErrUserNotFound, "cannot get user")
	}
	return &user, nil
}

func (r *GormRepo) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := r.DB.WithContext(ctx).Order("created_at ASC").Find(&users).Error; err != nil {
		return nil, dbError(err, ErrUserNotFound, "cannot list users")
	}
	return users, nil
}

// UpdateUser writes only the named fields of u.
func (r *GormRepo) UpdateUser(ctx context.Context, u *models.User, fields ...string) error {
	res := r.DB.WithContext(ctx).Model(u).Select(withUpdatedAt(fields)).Updates(u)
	if res.Error != nil {
		return dbError(res.Error, ErrUserNotFound, "cannot update user")
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *GormRepo) DeleteUser(ctx context.Context, id uuid.UUID) error {
	res := r.DB.WithContext(ctx).Delete(&models.User{}, "id = ?", id)
	if res.Error != nil {
		return dbError(res.Error, ErrUserNotFound, "cannot delete user")
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}
