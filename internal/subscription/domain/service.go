package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/portalsync/pkg/db/pagination"
)

type CreateSubscriptionRequest struct {
	ServiceName  string         `json:"service_name"`
	Amount       string         `json:"amount"`
	Currency     string         `json:"currency"`
	BillingCycle BillingCycle   `json:"billing_cycle"`
	TaxRate      string         `json:"tax_rate,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

type ListSubscriptionRequest struct {
	Status    string
	PageToken string
	PageSize  int
}

type ListSubscriptionResponse struct {
	pagination.PageInfo
	Subscriptions []Subscription `json:"subscriptions"`
}

// ApplyExternalReferenceRequest is reported by the billing workflow once the
// upstream subscription exists.
type ApplyExternalReferenceRequest struct {
	SubscriptionID   string  `json:"subscription_id"`
	StripeID         string  `json:"stripe_id"`
	StripeCustomerID *string `json:"stripe_customer_id,omitempty"`
}

type Service interface {
	Create(context.Context, CreateSubscriptionRequest) (Subscription, error)
	GetByID(context.Context, string) (Subscription, error)
	List(context.Context, ListSubscriptionRequest) (ListSubscriptionResponse, error)
	Delete(context.Context, string) error
	// TransitionSubscription dispatches the lifecycle intent to the billing
	// workflow, then writes the new status locally. A failed local write is
	// returned as *LocalWriteError; the dispatch is not retried or revoked.
	TransitionSubscription(ctx context.Context, subscriptionID string, targetStatus SubscriptionStatus) (Subscription, error)
	ApplyExternalReference(context.Context, ApplyExternalReferenceRequest) (Subscription, error)
}

var (
	ErrInvalidTenant              = errors.New("invalid_tenant")
	ErrInvalidSubscription        = errors.New("invalid_subscription")
	ErrInvalidServiceName         = errors.New("invalid_service_name")
	ErrInvalidAmount              = errors.New("invalid_amount")
	ErrInvalidCurrency            = errors.New("invalid_currency")
	ErrInvalidBillingCycle        = errors.New("invalid_billing_cycle")
	ErrInvalidTaxRate             = errors.New("invalid_tax_rate")
	ErrInvalidStatus              = errors.New("invalid_status")
	ErrInvalidTargetStatus        = errors.New("invalid_target_status")
	ErrInvalidTransition          = errors.New("invalid_transition")
	ErrInvalidExternalReference   = errors.New("invalid_external_reference")
	ErrExternalReferenceImmutable = errors.New("external_reference_immutable")
	ErrSubscriptionNotFound       = errors.New("subscription_not_found")
	ErrStaleSubscription          = errors.New("stale_subscription")
	ErrLocalWriteFailed           = errors.New("local_write_failed")
)

// LocalWriteError reports a status write that failed after the intent was
// already dispatched.
type LocalWriteError struct {
	SubscriptionID snowflake.ID
	Target         SubscriptionStatus
	Err            error
}

func (e *LocalWriteError) Error() string {
	return fmt.Sprintf("local_write_failed: subscription %s to %s: %v", e.SubscriptionID, e.Target, e.Err)
}

func (e *LocalWriteError) Unwrap() []error {
	return []error{ErrLocalWriteFailed, e.Err}
}
