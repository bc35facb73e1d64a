package catalog

import (
	"sync/atomic"

	"github.com/noot-app/nutrient-engine/internal/types"
)

// Holder publishes the current catalog snapshot. Readers never block;
// a reload swaps the whole snapshot.
type Holder struct {
	current atomic.Pointer[Catalog]
}

// NewHolder returns a holder seeded with c
func NewHolder(c *Catalog) *Holder {
	h := &Holder{}
	h.current.Store(c)
	return h
}

// Load returns the current snapshot. Before the first Store it returns an
// empty catalog, so every code is unmapped.
func (h *Holder) Load() *Catalog {
	if c := h.current.Load(); c != nil {
		return c
	}
	return empty
}

// Store publishes c
func (h *Holder) Store(c *Catalog) {
	h.current.Store(c)
}

var empty, _ = New(types.CatalogData{})
