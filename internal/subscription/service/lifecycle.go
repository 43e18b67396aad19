package service

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	notificationdomain "github.com/smallbiznis/portalsync/internal/notification/domain"
	subscriptiondomain "github.com/smallbiznis/portalsync/internal/subscription/domain"
)

var maxTaxRate = decimal.NewFromInt(100)

// applyLifecycle sets status and billing dates for a local transition.
func applyLifecycle(subscription *subscriptiondomain.Subscription, target subscriptiondomain.SubscriptionStatus, now time.Time) {
	from := subscription.Status
	subscription.Status = target
	subscription.UpdatedAt = now

	if target != subscriptiondomain.SubscriptionStatusActive {
		return
	}

	if from == subscriptiondomain.SubscriptionStatusPending {
		start := now
		next := subscription.BillingCycle.Next(start)
		subscription.StartDate = &start
		subscription.NextBillingDate = &next
		return
	}

	// resume: keep a future billing date, otherwise roll it forward
	next := now
	if subscription.NextBillingDate != nil {
		next = *subscription.NextBillingDate
	}
	for !next.After(now) {
		next = subscription.BillingCycle.Next(next)
	}
	subscription.NextBillingDate = &next
}

// transitionNotice leads each title with the word that tells the transitions
// apart; the similarity signature and the display topic both key on it.
func transitionNotice(from, to subscriptiondomain.SubscriptionStatus) (string, notificationdomain.Severity) {
	switch to {
	case subscriptiondomain.SubscriptionStatusActive:
		if from == subscriptiondomain.SubscriptionStatusPaused {
			return "Réactivation de l'abonnement", notificationdomain.SeveritySuccess
		}
		return "Activation de l'abonnement en cours", notificationdomain.SeverityInfo
	case subscriptiondomain.SubscriptionStatusPaused:
		return "Suspension de l'abonnement", notificationdomain.SeverityWarning
	case subscriptiondomain.SubscriptionStatusCancelled:
		return "Résiliation de l'abonnement", notificationdomain.SeverityWarning
	default:
		return "", ""
	}
}

func subscriptionLink(id snowflake.ID) string {
	return "/subscriptions/" + id.String()
}

func decimalNumber(value decimal.Decimal) json.Number {
	return json.Number(value.String())
}

func normalizeCurrency(value string) (string, error) {
	currency := strings.ToUpper(strings.TrimSpace(value))
	if currency == "" {
		return "EUR", nil
	}
	if len(currency) != 3 {
		return "", subscriptiondomain.ErrInvalidCurrency
	}
	for _, r := range currency {
		if r < 'A' || r > 'Z' {
			return "", subscriptiondomain.ErrInvalidCurrency
		}
	}
	return currency, nil
}

func parseBillingCycle(value subscriptiondomain.BillingCycle) (subscriptiondomain.BillingCycle, error) {
	cycle := subscriptiondomain.BillingCycle(strings.ToLower(strings.TrimSpace(string(value))))
	switch cycle {
	case "":
		return subscriptiondomain.BillingCycleMonthly, nil
	case subscriptiondomain.BillingCycleMonthly, subscriptiondomain.BillingCycleYearly:
		return cycle, nil
	default:
		return "", subscriptiondomain.ErrInvalidBillingCycle
	}
}

func parseTaxRate(value string) (decimal.Decimal, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return decimal.Zero, nil
	}
	rate, err := decimal.NewFromString(value)
	if err != nil || rate.IsNegative() || rate.GreaterThan(maxTaxRate) {
		return decimal.Zero, subscriptiondomain.ErrInvalidTaxRate
	}
	return rate, nil
}

func parseStatusFilter(value string) (*subscriptiondomain.SubscriptionStatus, error) {
	status := strings.ToLower(strings.TrimSpace(value))
	if status == "" {
		return nil, nil
	}
	parsed := subscriptiondomain.SubscriptionStatus(status)
	if !subscriptiondomain.IsValidStatus(parsed) {
		return nil, subscriptiondomain.ErrInvalidStatus
	}
	return &parsed, nil
}
