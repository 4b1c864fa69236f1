package domain

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlagFor(t *testing.T) {
	tests := []struct {
		category, action string
		want             Flag
	}{
		{"search", "query", FlagUsedSearch},
		{"search", "result_click", FlagUsedSearch},
		{"sticker", "upload_complete", FlagUploadedImage},
		{"sticker", "select", FlagBrowsedStickers},
		{"editor", "image_uploaded", FlagUploadedImage},
		{"editor", "crop", FlagUsedEditor},
		{"checkout", "payment_success", FlagCompletedPayment},
		{"checkout", "view_cart", FlagReachedCheckout},
		{"card", "browse", FlagBrowsedGreetingCards},
		{"gift_card", "select_amount", FlagBrowsedGiftCards},
		{"gift-card", "select_amount", FlagBrowsedGiftCards},
		{"Search", "query", FlagUsedSearch},
		{"output", "print", ""},
		{"unknown", "anything", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FlagFor(tt.category, tt.action), "%s/%s", tt.category, tt.action)
	}
}

func TestFlags_SetHas(t *testing.T) {
	var f Flags
	for _, flag := range AllFlags {
		require.False(t, f.Has(flag), "%s set on zero Flags", flag)
		f.Set(flag)
		assert.True(t, f.Has(flag), "%s not set after Set", flag)
	}
	f.Set("")
	f.Set("bogus")
	assert.False(t, f.Has("bogus"))
}

// Replay is order-independent: the flags of a session do not depend on event arrival order.
func TestReplay_OrderIndependent(t *testing.T) {
	events := []*Event{
		{Category: "search", Action: "query"},
		{Category: "checkout", Action: "view_cart"},
		{Category: "checkout", Action: "payment_success"},
		{Category: "output", Action: "print"},
		{Category: "sticker", Action: "upload_complete"},
	}
	want, n := Replay(events)
	require.EqualValues(t, 5, n)
	require.True(t, want.UsedSearch && want.ReachedCheckout && want.CompletedPayment && want.UploadedImage, "flags %+v", want)
	require.False(t, want.UsedEditor || want.BrowsedStickers, "flags %+v", want)

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		shuffled := append([]*Event(nil), events...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		got, _ := Replay(shuffled)
		require.Equal(t, want, got)
	}
}

func TestOutcome(t *testing.T) {
	assert.False(t, Outcome("printed_poster").Valid())
	for _, o := range Outcomes {
		assert.True(t, o.Valid(), string(o))
	}
	assert.False(t, OutcomeAbandoned.Completed())
	assert.False(t, OutcomeInProgress.Completed())
	assert.True(t, OutcomeSentDigital.Completed())
}
