package storage

//go:generate go run go.uber.org/mock/mockgen -source=storage.go -destination=mocks/mock_placer.go -package=mocks

import (
	"context"
	"errors"
)

// Object is a single piece of content to be placed.
// Index is the position of the item in its upload batch.
type Object struct {
	AlbumID  uint64
	Index    int
	Ext      string // lower-case with leading dot, may be empty
	MimeType string
	Data     []byte
}

// Placer stores content durably and returns a locator it can be fetched from
type Placer interface {
	Place(ctx context.Context, obj Object) (string, error)
	// Owns reports whether the locator was produced by this placer
	Owns(locator string) bool
	Remove(ctx context.Context, locator string) error
}

var ErrUnknownLocator = errors.New("locator does not belong to any storage")

// Remove deletes the content behind locator from whichever placer produced it.
// Nil placers are skipped.
func Remove(ctx context.Context, locator string, placers ...Placer) error {
	for _, p := range placers {
		if p == nil || !p.Owns(locator) {
			continue
		}
		return p.Remove(ctx, locator)
	}
	return ErrUnknownLocator
}
