package dedup

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/portalsync/internal/clock"
	"github.com/smallbiznis/portalsync/internal/notification/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func notif(id int64, title, link string) domain.Notification {
	n := domain.Notification{ID: snowflake.ID(id), Title: title, Message: "m", CreatedAt: epoch}
	if link != "" {
		n.Link = &link
	}
	return n
}

func newDeduper(clk clock.Clock) *Deduper {
	return New(clk, Config{LiveWindow: 5 * time.Second, SimilarityWindow: 3 * time.Second, Signature: DefaultSignature(10)})
}

func TestSameIDTwiceInWindowIsDuplicate(t *testing.T) {
	clk := clock.NewFakeClock(epoch)
	d := newDeduper(clk)
	event := notif(1, "Paiement reçu", "/invoices/7")

	first := d.Admit(event)
	clk.Advance(4 * time.Second)
	second := d.Admit(event)

	assert.True(t, first.Fresh)
	assert.False(t, second.Fresh)
	assert.Equal(t, ReasonIdentity, second.Reason)
	require.NotNil(t, second.DuplicateOf)
	assert.Equal(t, event.ID, second.DuplicateOf.ID)
}

func TestSameIDAfterWindowIsFresh(t *testing.T) {
	clk := clock.NewFakeClock(epoch)
	d := newDeduper(clk)
	event := notif(1, "Paiement reçu", "/invoices/7")

	require.True(t, d.Admit(event).Fresh)
	clk.Advance(6 * time.Second)

	assert.True(t, d.Admit(event).Fresh)
}

func TestSimilarSignatureWithinWindowIsDuplicate(t *testing.T) {
	clk := clock.NewFakeClock(epoch)
	d := newDeduper(clk)

	require.True(t, d.Admit(notif(1, "Paiement reçu", "/invoices/7")).Fresh)
	clk.Advance(time.Second)
	res := d.Admit(notif(2, "paiement reçu pour F-2026-001", "/invoices/7"))

	assert.False(t, res.Fresh)
	assert.Equal(t, ReasonSimilar, res.Reason)
}

func TestSimilarSignatureDifferentLinkIsFresh(t *testing.T) {
	clk := clock.NewFakeClock(epoch)
	d := newDeduper(clk)

	require.True(t, d.Admit(notif(1, "Paiement reçu", "/invoices/7")).Fresh)
	clk.Advance(time.Second)

	assert.True(t, d.Admit(notif(2, "Paiement reçu", "/invoices/8")).Fresh)
}

func TestSimilarityWindowExpires(t *testing.T) {
	clk := clock.NewFakeClock(epoch)
	d := newDeduper(clk)

	require.True(t, d.Admit(notif(1, "Paiement reçu", "/invoices/7")).Fresh)
	clk.Advance(3*time.Second + time.Millisecond)

	assert.True(t, d.Admit(notif(2, "Paiement reçu", "/invoices/7")).Fresh)
}

func TestAdmitPrunesExpiredEntries(t *testing.T) {
	clk := clock.NewFakeClock(epoch)
	d := newDeduper(clk)

	d.Admit(notif(1, "Un", ""))
	d.Admit(notif(2, "Deux", ""))
	require.Equal(t, 2, d.Len())

	clk.Advance(10 * time.Second)
	d.Admit(notif(3, "Trois", ""))

	assert.Equal(t, 1, d.Len())
	assert.False(t, d.Seen(1))
	assert.True(t, d.Seen(3))
}

func TestDefaultSignatureTruncatesRunes(t *testing.T) {
	sig := DefaultSignature(10)(notif(1, "Échéance proche (3j)", "/invoices/1"))
	assert.Equal(t, "/invoices/1|échéance p", sig)
}
