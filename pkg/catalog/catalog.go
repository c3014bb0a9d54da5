// Package catalog provides the mock product catalog a simulated cart
// shops from. The default catalog mirrors the pilot venue's demo
// inventory; real deployments would back Provider with the venue's
// product service.
package catalog

import (
	"errors"
	"math/rand"

	"github.com/smartcart-labs/smartcart-go/pkg/wire"
)

// ErrEmptyCatalog indicates a pick from a provider with no items.
var ErrEmptyCatalog = errors.New("catalog is empty")

// Provider supplies the items a cart can pick.
type Provider interface {
	// Items returns the catalog contents. Callers may not mutate the
	// returned slice's items.
	Items() []wire.CartItem
}

// StaticCatalog is a fixed in-memory Provider.
type StaticCatalog struct {
	items []wire.CartItem
}

// NewStatic creates a catalog from a fixed item list.
func NewStatic(items ...wire.CartItem) *StaticCatalog {
	cp := make([]wire.CartItem, len(items))
	copy(cp, items)
	return &StaticCatalog{items: cp}
}

// Default returns the demo inventory.
func Default() *StaticCatalog {
	return NewStatic(
		wire.CartItem{ProductID: "FV001", ProductName: "Apple - Royal Gala", Price: 180.00},
		wire.CartItem{ProductID: "DE001", ProductName: "Toned Milk (1L)", Price: 62.00},
		wire.CartItem{ProductID: "BB001", ProductName: "Whole Wheat Bread", Price: 50.00},
		wire.CartItem{ProductID: "SN001", ProductName: "Potato Chips - Salted", Price: 35.00},
		wire.CartItem{ProductID: "BV002", ProductName: "Cola (2.25L)", Price: 99.00},
		wire.CartItem{ProductID: "PS005", ProductName: "Salt (1kg)", Price: 22.00},
	)
}

// Items returns a copy of the catalog contents.
func (c *StaticCatalog) Items() []wire.CartItem {
	cp := make([]wire.CartItem, len(c.items))
	copy(cp, c.items)
	return cp
}

// Lookup finds an item by product id.
func (c *StaticCatalog) Lookup(productID string) (wire.CartItem, bool) {
	for _, item := range c.items {
		if item.ProductID == productID {
			return item, true
		}
	}
	return wire.CartItem{}, false
}

// Picker draws random items from a provider. The random source is
// injected so scenario tests can run deterministically.
type Picker struct {
	provider Provider
	rng      *rand.Rand
}

// NewPicker creates a picker over provider using rng.
func NewPicker(provider Provider, rng *rand.Rand) *Picker {
	return &Picker{provider: provider, rng: rng}
}

// Pick draws one item uniformly at random.
func (p *Picker) Pick() (wire.CartItem, error) {
	items := p.provider.Items()
	if len(items) == 0 {
		return wire.CartItem{}, ErrEmptyCatalog
	}
	return items[p.rng.Intn(len(items))], nil
}

// Compile-time interface satisfaction check.
var _ Provider = (*StaticCatalog)(nil)
