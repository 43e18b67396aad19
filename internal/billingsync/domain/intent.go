// Package domain describes the one-way lifecycle intents sent to the
// external billing workflow.
package domain

import (
	"context"
	"encoding/json"
)

//go:generate mockgen -destination=../mock/dispatcher_mock.go -package=mock github.com/smallbiznis/portalsync/internal/billingsync/domain Dispatcher

// Mode tells the billing workflow which operation the intent asks for, so it
// never has to infer it from field values.
type Mode string

const (
	// ModeSubscriptionStart provisions a new upstream billing object.
	ModeSubscriptionStart Mode = "subscription_start"
	// ModeUpdateStatus changes the status of an existing upstream object.
	ModeUpdateStatus Mode = "update_status"
)

// Intent is the JSON body posted to the billing workflow.
type Intent struct {
	Mode         Mode                `json:"mode"`
	TargetStatus string              `json:"target_status"`
	Subscription SubscriptionPayload `json:"subscription"`
	Client       ClientPayload       `json:"client"`
}

type SubscriptionPayload struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Amount   json.Number `json:"amount"`
	Interval string      `json:"interval"`
	Currency string      `json:"currency"`
	Status   string      `json:"status"`
	StripeID *string     `json:"stripe_id"`
	TaxRate  json.Number `json:"tax_rate"`
}

type ClientPayload struct {
	Email            string  `json:"email"`
	Name             string  `json:"name"`
	Company          string  `json:"company"`
	SupabaseUserID   string  `json:"supabase_user_id"`
	StripeCustomerID *string `json:"stripe_customer_id"`
	VATNumber        *string `json:"vat_number"`
	Address          *string `json:"address"`
}

// Dispatcher sends intents with an at-least-once attempt and no
// confirmation. Dispatch returns as soon as the attempt is issued and never
// reports whether the workflow applied it; callers that need the outcome
// wait for the workflow's own callback.
type Dispatcher interface {
	Dispatch(ctx context.Context, intent Intent)
}
