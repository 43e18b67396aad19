package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/smallbiznis/portalsync/internal/clock"
	"github.com/smallbiznis/portalsync/internal/customer/domain"
	"github.com/smallbiznis/portalsync/internal/customer/repository"
	"github.com/smallbiznis/portalsync/internal/orgcontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) domain.Service {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Customer{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)),
		Repo:  repository.Provide(),
	})
}

func TestUpsertCreatesThenUpdates(t *testing.T) {
	svc := newTestService(t)
	ctx := orgcontext.WithTenantID(context.Background(), uuid.New())

	created, err := svc.Upsert(ctx, domain.UpsertCustomerRequest{Name: "Atelier Nord", Email: "compta@nord.fr"})
	require.NoError(t, err)
	assert.Nil(t, created.StripeCustomerID)

	vat := " FR123 "
	updated, err := svc.Upsert(ctx, domain.UpsertCustomerRequest{Name: "Atelier Nord", Email: "billing@nord.fr", VATNumber: &vat})
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)

	got, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "billing@nord.fr", got.Email)
	require.NotNil(t, got.VATNumber)
	assert.Equal(t, "FR123", *got.VATNumber)
}

func TestUpsertRequiresTenantAndEmail(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Upsert(context.Background(), domain.UpsertCustomerRequest{Name: "x", Email: "x@y.z"})
	assert.ErrorIs(t, err, domain.ErrInvalidTenant)

	ctx := orgcontext.WithTenantID(context.Background(), uuid.New())
	_, err = svc.Upsert(ctx, domain.UpsertCustomerRequest{Name: "x", Email: "nope"})
	assert.ErrorIs(t, err, domain.ErrInvalidEmail)
}

func TestAttachExternalReferenceKeepsFirstValue(t *testing.T) {
	svc := newTestService(t)
	ctx := orgcontext.WithTenantID(context.Background(), uuid.New())

	_, err := svc.Upsert(ctx, domain.UpsertCustomerRequest{Name: "Atelier", Email: "a@b.fr"})
	require.NoError(t, err)

	require.NoError(t, svc.AttachExternalReference(ctx, "cus_1"))
	require.NoError(t, svc.AttachExternalReference(ctx, "cus_2"))

	got, err := svc.Get(ctx)
	require.NoError(t, err)
	require.NotNil(t, got.StripeCustomerID)
	assert.Equal(t, "cus_1", *got.StripeCustomerID)
}

func TestGetMissingProfile(t *testing.T) {
	svc := newTestService(t)
	ctx := orgcontext.WithTenantID(context.Background(), uuid.New())

	_, err := svc.Get(ctx)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
