// Package adapters contains the per-source extraction logic. Every
// external source implements grants.SourceAdapter and registers in a
// Registry the orchestrator dispatches from.
package adapters

import (
	"fmt"
	"strings"

	"github.com/grantscout/discovery/internal/grants"
)

// Registry maps source names onto their adapters, preserving
// registration order for deterministic runs.
type Registry struct {
	adapters map[string]grants.SourceAdapter
	order    []string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[string]grants.SourceAdapter),
	}
}

// Register adds one adapter. Names are case-insensitive and unique.
func (r *Registry) Register(adapter grants.SourceAdapter) error {
	name := strings.ToLower(adapter.Name())
	if name == "" {
		return fmt.Errorf("adapter name is required")
	}
	if _, exists := r.adapters[name]; exists {
		return fmt.Errorf("adapter %q already registered", name)
	}
	r.adapters[name] = adapter
	r.order = append(r.order, name)
	return nil
}

// Get returns the adapter registered under name.
func (r *Registry) Get(name string) (grants.SourceAdapter, bool) {
	adapter, ok := r.adapters[strings.ToLower(name)]
	return adapter, ok
}

// Names lists registered source names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// assign routes an extracted value onto the raw candidate by canonical
// field name. Unknown names are ignored so configs can carry extra
// annotations without breaking extraction.
func assign(c *grants.RawCandidate, field, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	switch field {
	case "title":
		c.Title = value
	case "description":
		c.Description = value
	case "detail_url":
		c.DetailURL = value
	case "application_url":
		c.ApplicationURL = value
	case "contact":
		c.Contact = value
	case "amount":
		c.AmountText = value
	case "open_date":
		c.OpenDateText = value
	case "deadline":
		c.DeadlineText = value
	case "industry":
		c.IndustryText = value
	case "location":
		c.LocationText = value
	case "org_types":
		c.OrgTypesText = value
	case "purpose":
		c.PurposeText = value
	case "audience":
		c.AudienceText = value
	case "status":
		c.StatusText = value
	}
}
