package repository

import (
	"context"
	"errors"

	"mysticoracle/internal/model"

	"gorm.io/gorm"
)

var (
	ErrPackageNotFound = errors.New("套餐不存在")
)

type PackageRepository struct {
	db *gorm.DB
}

func NewPackageRepository(db *gorm.DB) *PackageRepository {
	return &PackageRepository{db: db}
}

// ListActive 可购买套餐列表，按运营设置的顺序返回
func (r *PackageRepository) ListActive(ctx context.Context) ([]*model.CreditPackage, error) {
	var packages []*model.CreditPackage
	err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Order("sort_order ASC, id ASC").
		Find(&packages).Error
	return packages, err
}

func (r *PackageRepository) GetByID(ctx context.Context, id int64) (*model.CreditPackage, error) {
	var pkg model.CreditPackage
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&pkg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPackageNotFound
		}
		return nil, err
	}
	return &pkg, nil
}

// GetActiveByID 只返回在售套餐，下单时用这个，避免买到已下架套餐
func (r *PackageRepository) GetActiveByID(ctx context.Context, id int64) (*model.CreditPackage, error) {
	var pkg model.CreditPackage
	err := r.db.WithContext(ctx).Where("id = ? AND active = ?", id, true).First(&pkg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPackageNotFound
		}
		return nil, err
	}
	return &pkg, nil
}
