package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"github.com/google/uuid"
	"github.com/smallbiznis/portalsync/internal/config"
	"github.com/smallbiznis/portalsync/pkg/log/ctxlogger"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectSubscription = "subscription"
	ObjectNotification = "notification"
	ObjectInvoice      = "invoice"
	ObjectCustomer     = "customer"
	ObjectScope        = "scope"
)

const (
	ActionSubscriptionView       = "subscription.view"
	ActionSubscriptionCreate     = "subscription.create"
	ActionSubscriptionDelete     = "subscription.delete"
	ActionSubscriptionTransition = "subscription.transition"

	ActionNotificationView   = "notification.view"
	ActionNotificationManage = "notification.manage"

	ActionInvoiceView = "invoice.view"

	ActionCustomerView   = "customer.view"
	ActionCustomerUpdate = "customer.update"

	ActionScopeImpersonate = "scope.impersonate"
)

const (
	RoleAdmin  = "role:admin"
	RoleClient = "role:client"

	// allTenants is the grouping domain of roles valid on every tenant.
	allTenants = "*"
)

type Params struct {
	fx.In

	Config   config.Config
	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	admins   map[uuid.UUID]struct{}
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) (Service, error) {
	admins := make(map[uuid.UUID]struct{}, len(p.Config.AdminOperators))
	for _, raw := range p.Config.AdminOperators {
		id, err := uuid.Parse(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("ADMIN_OPERATORS: %w", err)
		}
		admins[id] = struct{}{}
	}

	s := &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		admins:   admins,
	}
	for id := range admins {
		if err := s.ensureGrouping(actorSubject(id), RoleAdmin, allTenants); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Authorize checks actor ("operator:<uuid>") against tenantID. Admins hold
// their role on every tenant; any other operator is a client of its own
// tenant only.
func (s *ServiceImpl) Authorize(ctx context.Context, actor string, tenantID string, object string, action string) error {
	operatorID, err := parseActor(actor)
	if err != nil {
		return err
	}
	tenant, err := uuid.Parse(strings.TrimSpace(tenantID))
	if err != nil || tenant == uuid.Nil {
		return ErrInvalidTenant
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	subject := actorSubject(operatorID)
	domain := tenantDomain(tenant)
	if _, admin := s.admins[operatorID]; !admin && operatorID == tenant {
		if err := s.ensureGrouping(subject, RoleClient, domain); err != nil {
			return err
		}
	}

	allowed, err := s.enforcer.Enforce(subject, domain, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		ctxlogger.WithContext(ctx, s.log).Warn("authorization denied",
			zap.String("subject", subject),
			zap.String("domain", domain),
			zap.String("object", object),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

func (s *ServiceImpl) ensureGrouping(subject string, roleName string, domain string) error {
	has, err := s.enforcer.HasGroupingPolicy(subject, roleName, domain)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName, domain)
	return err
}

func parseActor(actor string) (uuid.UUID, error) {
	actor = strings.TrimSpace(actor)
	if !strings.HasPrefix(actor, "operator:") {
		return uuid.Nil, ErrInvalidActor
	}
	id, err := uuid.Parse(strings.TrimPrefix(actor, "operator:"))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, ErrInvalidActor
	}
	return id, nil
}

// Actor formats the casbin subject of an operator.
func Actor(operatorID uuid.UUID) string {
	return actorSubject(operatorID)
}

func actorSubject(operatorID uuid.UUID) string {
	return "operator:" + operatorID.String()
}

func tenantDomain(tenantID uuid.UUID) string {
	return "tenant:" + tenantID.String()
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Client permissions, on their own tenant
		{RoleClient, ObjectSubscription, ActionSubscriptionView},
		{RoleClient, ObjectInvoice, ActionInvoiceView},
		{RoleClient, ObjectNotification, ActionNotificationView},
		{RoleClient, ObjectNotification, ActionNotificationManage},
		{RoleClient, ObjectCustomer, ActionCustomerView},
		{RoleClient, ObjectCustomer, ActionCustomerUpdate},

		// Admin permissions, on every tenant
		{RoleAdmin, ObjectSubscription, ActionSubscriptionView},
		{RoleAdmin, ObjectSubscription, ActionSubscriptionCreate},
		{RoleAdmin, ObjectSubscription, ActionSubscriptionDelete},
		{RoleAdmin, ObjectSubscription, ActionSubscriptionTransition},
		{RoleAdmin, ObjectInvoice, ActionInvoiceView},
		{RoleAdmin, ObjectNotification, ActionNotificationView},
		{RoleAdmin, ObjectNotification, ActionNotificationManage},
		{RoleAdmin, ObjectCustomer, ActionCustomerView},
		{RoleAdmin, ObjectCustomer, ActionCustomerUpdate},
		{RoleAdmin, ObjectScope, ActionScopeImpersonate},
	}

	for _, policy := range policies {
		has, err := enforcer.HasPolicy(policy)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
