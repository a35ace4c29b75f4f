package service

import (
	"context"
	"strings"

	"github.com/billfold/billfold/internal/catalog/domain"
	"github.com/billfold/billfold/pkg/db/option"
	"github.com/billfold/billfold/pkg/repository"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type Catalog struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node

	services repository.Repository[domain.Service]
}

func NewCatalog(p Params) domain.Catalog {
	return &Catalog{
		db:    p.DB,
		log:   p.Log.Named("catalog.service"),
		genID: p.GenID,

		services: repository.ProvideStore[domain.Service](p.DB),
	}
}

func (s *Catalog) Create(ctx context.Context, req domain.CreateServiceRequest) (*domain.Service, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	if req.Price < 0 {
		return nil, domain.ErrInvalidPrice
	}
	cycle := req.BillingCycle
	if cycle == "" {
		cycle = domain.CycleMonthly
	}
	if !cycle.Valid() {
		return nil, domain.ErrInvalidCycle
	}

	svc := &domain.Service{
		ID:           s.genID.Generate(),
		Name:         name,
		Description:  strings.TrimSpace(req.Description),
		Category:     strings.TrimSpace(req.Category),
		Price:        req.Price,
		Recurring:    req.Recurring,
		BillingCycle: cycle,
		Active:       true,
	}
	if err := s.services.Create(ctx, svc); err != nil {
		return nil, err
	}
	return svc, nil
}

func (s *Catalog) Update(ctx context.Context, id snowflake.ID, req domain.UpdateServiceRequest) (*domain.Service, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, domain.ErrInvalidName
		}
		updates["name"] = name
	}
	if req.Description != nil {
		updates["description"] = strings.TrimSpace(*req.Description)
	}
	if req.Category != nil {
		updates["category"] = strings.TrimSpace(*req.Category)
	}
	if req.Price != nil {
		if *req.Price < 0 {
			return nil, domain.ErrInvalidPrice
		}
		updates["price"] = *req.Price
	}
	if req.Recurring != nil {
		updates["recurring"] = *req.Recurring
	}
	if req.BillingCycle != nil {
		if !req.BillingCycle.Valid() {
			return nil, domain.ErrInvalidCycle
		}
		updates["billing_cycle"] = *req.BillingCycle
	}
	if req.Active != nil {
		updates["active"] = *req.Active
	}
	if len(updates) > 0 {
		if err := s.services.Update(ctx, id.String(), updates); err != nil {
			return nil, err
		}
	}
	return s.Get(ctx, id)
}

func (s *Catalog) Delete(ctx context.Context, id snowflake.ID) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}

	var referenced int64
	if err := s.db.WithContext(ctx).Table("orders").
		Where("service_id = ?", id).
		Count(&referenced).Error; err != nil {
		return err
	}
	if referenced > 0 {
		// Orders point at this service, keep the row for history.
		return s.services.Update(ctx, id.String(), map[string]any{"active": false})
	}
	return s.services.Delete(ctx, id.String())
}

func (s *Catalog) Get(ctx context.Context, id snowflake.ID) (*domain.Service, error) {
	svc, err := s.services.FindOne(ctx, &domain.Service{ID: id})
	if err != nil {
		return nil, err
	}
	if svc == nil {
		return nil, domain.ErrServiceNotFound
	}
	return svc, nil
}

func (s *Catalog) List(ctx context.Context, req domain.ListServicesRequest) ([]*domain.Service, error) {
	query := &domain.Service{}
	if category := strings.TrimSpace(req.Category); category != "" {
		query.Category = category
	}

	opts := []option.QueryOption{
		option.WithSortBy(option.QuerySortBy{Field: "created_at", Desc: true}),
	}
	if req.Limit > 0 {
		opts = append(opts, option.WithLimit(req.Limit))
	}
	if req.ActiveOnly {
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "active", Operator: option.EQ, Value: true}))
	}
	return s.services.Find(ctx, query, opts...)
}
