package domain

// transitions lists the reachable targets of each status. cancelled is
// terminal.
var transitions = map[SubscriptionStatus][]SubscriptionStatus{
	SubscriptionStatusPending: {SubscriptionStatusActive},
	SubscriptionStatusActive:  {SubscriptionStatusPaused, SubscriptionStatusCancelled},
	SubscriptionStatusPaused:  {SubscriptionStatusActive, SubscriptionStatusCancelled},
}

func IsValidStatus(status SubscriptionStatus) bool {
	switch status {
	case SubscriptionStatusPending,
		SubscriptionStatusActive,
		SubscriptionStatusPaused,
		SubscriptionStatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransition reports whether target is reachable from current in one step.
func CanTransition(current, target SubscriptionStatus) bool {
	for _, allowed := range transitions[current] {
		if allowed == target {
			return true
		}
	}
	return false
}

// IsFirstActivation reports whether moving to target must create the
// upstream object.
func IsFirstActivation(subscription Subscription, target SubscriptionStatus) bool {
	return target == SubscriptionStatusActive && !subscription.HasExternalReference()
}
