package member

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned for unknown member ids
var ErrNotFound = errors.New("member not found")

// Repository persists member profiles with gorm
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a repository on an open database
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Migrate creates or updates the members table
func (r *Repository) Migrate() error {
	return r.db.AutoMigrate(&Member{})
}

// Get loads a member by id
func (r *Repository) Get(ctx context.Context, id string) (Member, error) {
	var m Member
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Member{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Member{}, fmt.Errorf("failed to load member %s: %w", id, err)
	}
	return m, nil
}

// List returns all members ordered by id
func (r *Repository) List(ctx context.Context) ([]Member, error) {
	var members []Member
	if err := r.db.WithContext(ctx).Order("id").Find(&members).Error; err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	return members, nil
}

// Upsert inserts the member or replaces all of its columns
func (r *Repository) Upsert(ctx context.Context, m Member) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&m).Error
}

// SeedDefaults inserts the built-in members that do not exist yet
func (r *Repository) SeedDefaults(ctx context.Context) error {
	for _, m := range Defaults() {
		m := m
		if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&m).Error; err != nil {
			return fmt.Errorf("failed to seed member %s: %w", m.ID, err)
		}
	}
	return nil
}

// SetAttribute sets one profile attribute and returns the updated member
func (r *Repository) SetAttribute(ctx context.Context, id, key string, value interface{}) (Member, error) {
	return r.mutateProfile(ctx, id, func(p datatypes.JSONMap) {
		p[key] = value
	})
}

// AddProduct appends a product to current_products unless already present
func (r *Repository) AddProduct(ctx context.Context, id, product string) (Member, error) {
	return r.mutateProfile(ctx, id, func(p datatypes.JSONMap) {
		existing := Member{Profile: p}.Products()
		for _, have := range existing {
			if have == product {
				return
			}
		}
		list := make([]interface{}, 0, len(existing)+1)
		for _, have := range existing {
			list = append(list, have)
		}
		p[AttrProducts] = append(list, product)
	})
}

func (r *Repository) mutateProfile(ctx context.Context, id string, fn func(datatypes.JSONMap)) (Member, error) {
	var out Member
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m Member
		if err := tx.Where("id = ?", id).First(&m).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s", ErrNotFound, id)
			}
			return err
		}
		if m.Profile == nil {
			m.Profile = datatypes.JSONMap{}
		}
		fn(m.Profile)
		if err := tx.Model(&m).Update("profile", m.Profile).Error; err != nil {
			return err
		}
		out = m
		return nil
	})
	return out, err
}
