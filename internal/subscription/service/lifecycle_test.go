package service

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/portalsync/internal/clock"
	"github.com/smallbiznis/portalsync/internal/notification/dedup"
	notificationdomain "github.com/smallbiznis/portalsync/internal/notification/domain"
	subscriptiondomain "github.com/smallbiznis/portalsync/internal/subscription/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyLifecycleResumeRollsPastBillingDateForward(t *testing.T) {
	past := epoch.AddDate(0, -2, 0)
	sub := subscriptiondomain.Subscription{
		Status:          subscriptiondomain.SubscriptionStatusPaused,
		BillingCycle:    subscriptiondomain.BillingCycleMonthly,
		NextBillingDate: &past,
	}

	applyLifecycle(&sub, subscriptiondomain.SubscriptionStatusActive, epoch)

	require.NotNil(t, sub.NextBillingDate)
	assert.True(t, sub.NextBillingDate.After(epoch))
	assert.True(t, sub.NextBillingDate.Equal(past.AddDate(0, 3, 0)))
}

func TestApplyLifecycleResumeKeepsFutureBillingDate(t *testing.T) {
	future := epoch.Add(72 * time.Hour)
	sub := subscriptiondomain.Subscription{
		Status:          subscriptiondomain.SubscriptionStatusPaused,
		BillingCycle:    subscriptiondomain.BillingCycleYearly,
		NextBillingDate: &future,
	}

	applyLifecycle(&sub, subscriptiondomain.SubscriptionStatusActive, epoch)

	assert.True(t, sub.NextBillingDate.Equal(future))
}

func TestCanTransitionGraph(t *testing.T) {
	cases := []struct {
		from, to subscriptiondomain.SubscriptionStatus
		want     bool
	}{
		{subscriptiondomain.SubscriptionStatusPending, subscriptiondomain.SubscriptionStatusActive, true},
		{subscriptiondomain.SubscriptionStatusPending, subscriptiondomain.SubscriptionStatusPaused, false},
		{subscriptiondomain.SubscriptionStatusPending, subscriptiondomain.SubscriptionStatusCancelled, false},
		{subscriptiondomain.SubscriptionStatusActive, subscriptiondomain.SubscriptionStatusPaused, true},
		{subscriptiondomain.SubscriptionStatusActive, subscriptiondomain.SubscriptionStatusCancelled, true},
		{subscriptiondomain.SubscriptionStatusActive, subscriptiondomain.SubscriptionStatusActive, false},
		{subscriptiondomain.SubscriptionStatusPaused, subscriptiondomain.SubscriptionStatusActive, true},
		{subscriptiondomain.SubscriptionStatusPaused, subscriptiondomain.SubscriptionStatusCancelled, true},
		{subscriptiondomain.SubscriptionStatusCancelled, subscriptiondomain.SubscriptionStatusActive, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, subscriptiondomain.CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestPauseThenResumeNoticesAreNotMerged(t *testing.T) {
	clk := clock.NewFakeClock(epoch)
	deduper := dedup.New(clk, dedup.Config{
		LiveWindow:       5 * time.Second,
		SimilarityWindow: 3 * time.Second,
		Signature:        dedup.DefaultSignature(10),
	})
	link := subscriptionLink(snowflake.ID(42))

	transitions := []struct {
		from, to subscriptiondomain.SubscriptionStatus
	}{
		{subscriptiondomain.SubscriptionStatusPending, subscriptiondomain.SubscriptionStatusActive},
		{subscriptiondomain.SubscriptionStatusActive, subscriptiondomain.SubscriptionStatusPaused},
		{subscriptiondomain.SubscriptionStatusPaused, subscriptiondomain.SubscriptionStatusActive},
		{subscriptiondomain.SubscriptionStatusActive, subscriptiondomain.SubscriptionStatusCancelled},
	}

	topics := map[string]bool{}
	for i, tc := range transitions {
		title, _ := transitionNotice(tc.from, tc.to)
		require.NotEmpty(t, title)

		res := deduper.Admit(notificationdomain.Notification{
			ID:        snowflake.ID(i + 1),
			Title:     title,
			Link:      &link,
			CreatedAt: clk.Now(),
		})
		assert.True(t, res.Fresh, "%q merged into an earlier notice", title)

		topic := dedup.Topic(title)
		assert.False(t, topics[topic], "%q shares the display topic %q", title, topic)
		topics[topic] = true

		clk.Advance(time.Second)
	}
}
