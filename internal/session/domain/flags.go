package domain

import "strings"

// Flag names a behavioral feature a session touched. Values match the storage column names.
type Flag string

const (
	FlagUsedSearch           Flag = "used_search"
	FlagUploadedImage        Flag = "uploaded_image"
	FlagUsedEditor           Flag = "used_editor"
	FlagReachedCheckout      Flag = "reached_checkout"
	FlagCompletedPayment     Flag = "completed_payment"
	FlagBrowsedGreetingCards Flag = "browsed_greeting_cards"
	FlagBrowsedStickers      Flag = "browsed_stickers"
	FlagBrowsedGiftCards     Flag = "browsed_gift_cards"
)

// AllFlags lists every flag in reporting order.
var AllFlags = []Flag{
	FlagUsedSearch,
	FlagUploadedImage,
	FlagUsedEditor,
	FlagReachedCheckout,
	FlagCompletedPayment,
	FlagBrowsedGreetingCards,
	FlagBrowsedStickers,
	FlagBrowsedGiftCards,
}

// Event categories emitted by the kiosk UI.
const (
	CategorySearch   = "search"
	CategorySticker  = "sticker"
	CategoryCard     = "card"
	CategoryGiftCard = "gift_card"
	CategoryEditor   = "editor"
	CategoryCheckout = "checkout"
	CategoryOutput   = "output"
)

// anyAction matches every action of a category.
const anyAction = "*"

type eventKey struct {
	category string
	action   string
}

// flagTable maps (category, action) to the flag it sets. Exact actions win over anyAction.
// Categories without an entry (e.g. output) set no flag.
var flagTable = map[eventKey]Flag{
	{CategorySearch, anyAction}:           FlagUsedSearch,
	{CategorySticker, "upload_complete"}:  FlagUploadedImage,
	{CategorySticker, anyAction}:          FlagBrowsedStickers,
	{CategoryEditor, "image_uploaded"}:    FlagUploadedImage,
	{CategoryEditor, anyAction}:           FlagUsedEditor,
	{CategoryCheckout, "payment_success"}: FlagCompletedPayment,
	{CategoryCheckout, anyAction}:         FlagReachedCheckout,
	{CategoryCard, anyAction}:             FlagBrowsedGreetingCards,
	{CategoryGiftCard, anyAction}:         FlagBrowsedGiftCards,
}

// FlagFor returns the flag set by an event, or "" if it sets none. Categories are matched
// case-insensitively with '-' and '_' treated alike ("gift-card" is "gift_card").
func FlagFor(category, action string) Flag {
	category = strings.ReplaceAll(strings.ToLower(category), "-", "_")
	if f, ok := flagTable[eventKey{category, action}]; ok {
		return f
	}
	return flagTable[eventKey{category, anyAction}]
}

// Flags is the set of features a session touched. Flags only ever go from false to true.
type Flags struct {
	UsedSearch           bool
	UploadedImage        bool
	UsedEditor           bool
	ReachedCheckout      bool
	CompletedPayment     bool
	BrowsedGreetingCards bool
	BrowsedStickers      bool
	BrowsedGiftCards     bool
}

func (f *Flags) field(flag Flag) *bool {
	switch flag {
	case FlagUsedSearch:
		return &f.UsedSearch
	case FlagUploadedImage:
		return &f.UploadedImage
	case FlagUsedEditor:
		return &f.UsedEditor
	case FlagReachedCheckout:
		return &f.ReachedCheckout
	case FlagCompletedPayment:
		return &f.CompletedPayment
	case FlagBrowsedGreetingCards:
		return &f.BrowsedGreetingCards
	case FlagBrowsedStickers:
		return &f.BrowsedStickers
	case FlagBrowsedGiftCards:
		return &f.BrowsedGiftCards
	}
	return nil
}

// Set turns flag on. Unknown or empty flags are ignored.
func (f *Flags) Set(flag Flag) {
	if p := f.field(flag); p != nil {
		*p = true
	}
}

// Has reports whether flag is on.
func (f Flags) Has(flag Flag) bool {
	if p := f.field(flag); p != nil {
		return *p
	}
	return false
}

// Replay folds events into flags and a count. A session's stored flags and TotalEvents must
// always equal Replay of its event log.
func Replay(events []*Event) (Flags, int64) {
	var f Flags
	for _, e := range events {
		f.Set(FlagFor(e.Category, e.Action))
	}
	return f, int64(len(events))
}
