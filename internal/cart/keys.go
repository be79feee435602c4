package cart

import (
	"errors"
	"regexp"
)

const (
	itemsKey    = "roomCart"
	homeStayKey = "currentHomeStayId"
)

// ErrInvalidOwner is returned for cart owner ids that cannot be used as a key segment.
var ErrInvalidOwner = errors.New("cart: invalid owner")

var ownerPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// Keys names the two storage keys of one cart.
type Keys struct {
	Items    string
	HomeStay string
}

// KeysFor returns the storage keys of owner's cart. An empty owner yields
// the bare keys, which is what a single-cart client uses.
func KeysFor(prefix, owner string) Keys {
	if owner == "" {
		return Keys{Items: prefix + itemsKey, HomeStay: prefix + homeStayKey}
	}
	return Keys{
		Items:    prefix + owner + ":" + itemsKey,
		HomeStay: prefix + owner + ":" + homeStayKey,
	}
}

// ValidOwner reports whether owner is usable as a cart owner id.
func ValidOwner(owner string) bool {
	return ownerPattern.MatchString(owner)
}
