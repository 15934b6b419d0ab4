// Package catalog filters and orders an already fetched set of listings.
// Every function returns a new slice and leaves its input untouched.
package catalog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/imyashkale/mcphub/internal/models"
)

// SortField selects the ordering key
type SortField string

const (
	SortNone    SortField = ""
	SortRating  SortField = "rating"
	SortUsers   SortField = "users"
	SortCreated SortField = "created"
	SortUpdated SortField = "updated"
)

// SortOrder is accepted for compatibility; ordering is always descending
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// FeaturedCount is the number of listings shown as featured
const FeaturedCount = 6

// Filter describes a local filter/sort pass
type Filter struct {
	Status    models.ServerStatus // exact match when set
	SortBy    SortField
	SortOrder SortOrder
	Search    string   // case-insensitive substring of name or description
	Tags      []string // listing must carry all of them
	Limit     int      // 0 means no limit
}

// ParseSortField validates a sort_by value
func ParseSortField(s string) (SortField, error) {
	switch f := SortField(strings.ToLower(strings.TrimSpace(s))); f {
	case SortNone, SortRating, SortUsers, SortCreated, SortUpdated:
		return f, nil
	}
	return SortNone, fmt.Errorf("invalid sort field %q: want rating, users, created or updated", s)
}

// ParseSortOrder validates a sort_order value
func ParseSortOrder(s string) (SortOrder, error) {
	switch o := SortOrder(strings.ToLower(strings.TrimSpace(s))); o {
	case "":
		return SortDesc, nil
	case SortAsc, SortDesc:
		return o, nil
	}
	return SortDesc, fmt.Errorf("invalid sort order %q: want asc or desc", s)
}

// Apply filters by status, search and tags, then stable-sorts descending
// by the chosen field.
func Apply(listings []models.ServerListing, f Filter) []models.ServerListing {
	search := strings.ToLower(strings.TrimSpace(f.Search))

	out := lo.Filter(listings, func(l models.ServerListing, _ int) bool {
		if f.Status != "" && l.Status != f.Status {
			return false
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(l.Name), search) &&
			!strings.Contains(strings.ToLower(l.Description), search) {
			return false
		}
		return lo.Every(l.Tags, f.Tags)
	})

	if less := lessFor(f.SortBy); less != nil {
		sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	}

	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

// Featured returns the n highest rated listings
func Featured(listings []models.ServerListing, n int) []models.ServerListing {
	return Apply(listings, Filter{SortBy: SortRating, Limit: n})
}

// lessFor returns a "comes first" comparator that places larger values first
func lessFor(field SortField) func(a, b models.ServerListing) bool {
	switch field {
	case SortRating:
		return func(a, b models.ServerListing) bool { return a.Metrics.Rating > b.Metrics.Rating }
	case SortUsers:
		return func(a, b models.ServerListing) bool { return a.Metrics.Users > b.Metrics.Users }
	case SortCreated:
		return func(a, b models.ServerListing) bool { return a.CreatedAt.After(b.CreatedAt) }
	case SortUpdated:
		return func(a, b models.ServerListing) bool { return a.UpdatedAt.After(b.UpdatedAt) }
	}
	return nil
}
