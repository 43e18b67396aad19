package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/portalsync/internal/clock"
	"github.com/smallbiznis/portalsync/internal/customer/domain"
	"github.com/smallbiznis/portalsync/internal/orgcontext"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("customer.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Upsert(ctx context.Context, req domain.UpsertCustomerRequest) (domain.Customer, error) {
	tenantID, ok := orgcontext.TenantIDFromContext(ctx)
	if !ok {
		return domain.Customer{}, domain.ErrInvalidTenant
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Customer{}, domain.ErrInvalidName
	}
	email := strings.TrimSpace(req.Email)
	if email == "" || !strings.Contains(email, "@") {
		return domain.Customer{}, domain.ErrInvalidEmail
	}
	company := strings.TrimSpace(req.Company)
	vatNumber := trimmed(req.VATNumber)
	address := trimmed(req.Address)

	now := s.clock.Now()
	existing, err := s.repo.FindByTenant(ctx, s.db, tenantID)
	if err != nil {
		return domain.Customer{}, err
	}
	if existing != nil {
		if err := s.repo.Update(ctx, s.db, existing, map[string]any{
			"name":       name,
			"email":      email,
			"company":    company,
			"vat_number": vatNumber,
			"address":    address,
			"updated_at": now,
		}); err != nil {
			return domain.Customer{}, err
		}
		existing.Name = name
		existing.Email = email
		existing.Company = company
		existing.VATNumber = vatNumber
		existing.Address = address
		existing.UpdatedAt = now
		return *existing, nil
	}

	customer := domain.Customer{
		ID:        s.genID.Generate(),
		TenantID:  tenantID,
		Name:      name,
		Email:     email,
		Company:   company,
		VATNumber: vatNumber,
		Address:   address,
		Metadata:  datatypes.JSONMap{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Insert(ctx, s.db, &customer); err != nil {
		return domain.Customer{}, err
	}
	return customer, nil
}

func (s *Service) Get(ctx context.Context) (domain.Customer, error) {
	tenantID, ok := orgcontext.TenantIDFromContext(ctx)
	if !ok {
		return domain.Customer{}, domain.ErrInvalidTenant
	}

	customer, err := s.repo.FindByTenant(ctx, s.db, tenantID)
	if err != nil {
		return domain.Customer{}, err
	}
	if customer == nil {
		return domain.Customer{}, domain.ErrNotFound
	}
	return *customer, nil
}

func (s *Service) AttachExternalReference(ctx context.Context, stripeCustomerID string) error {
	stripeCustomerID = strings.TrimSpace(stripeCustomerID)
	if stripeCustomerID == "" {
		return nil
	}

	customer, err := s.Get(ctx)
	if err != nil {
		return err
	}
	if customer.StripeCustomerID != nil && *customer.StripeCustomerID != "" {
		if *customer.StripeCustomerID != stripeCustomerID {
			s.log.Warn("ignoring different billing customer reference",
				zap.String("tenant_id", customer.TenantID.String()),
				zap.String("current", *customer.StripeCustomerID),
				zap.String("received", stripeCustomerID),
			)
		}
		return nil
	}

	return s.repo.Update(ctx, s.db, &customer, map[string]any{
		"stripe_customer_id": stripeCustomerID,
		"updated_at":         s.clock.Now(),
	})
}

func trimmed(value *string) *string {
	if value == nil {
		return nil
	}
	v := strings.TrimSpace(*value)
	if v == "" {
		return nil
	}
	return &v
}
