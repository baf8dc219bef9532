package tenant

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// ErrNotFound reports an unknown tenant key. For an inbound request this is a
// client configuration error, not something to retry.
var ErrNotFound = errors.New("tenant: not found")

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) Create(ctx context.Context, t *Tenant) error {
	return r.db.WithContext(ctx).Create(t).Error
}

func (r *Repo) GetByKey(ctx context.Context, tenantKey string) (*Tenant, error) {
	var t Tenant
	if err := r.db.WithContext(ctx).
		Where("tenant_key = ?", tenantKey).
		First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *Repo) Update(ctx context.Context, t *Tenant) error {
	return r.db.WithContext(ctx).Save(t).Error
}
