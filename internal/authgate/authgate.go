// Package authgate decides which sign-in methods are offered. The set is
// parsed once from configuration and never changes afterwards.
package authgate

import (
	"strings"

	"github.com/samber/lo"
)

// Known provider names
const (
	GitHub = "github"
	Email  = "email"
)

// Providers is an immutable set of enabled sign-in providers
type Providers struct {
	enabled []string
}

// Parse reads a comma separated provider list. Whitespace and case are
// ignored, empty entries and duplicates dropped.
func Parse(raw string) Providers {
	names := lo.FilterMap(strings.Split(raw, ","), func(p string, _ int) (string, bool) {
		p = strings.ToLower(strings.TrimSpace(p))
		return p, p != ""
	})
	return Providers{enabled: lo.Uniq(names)}
}

// IsProviderEnabled reports whether name was listed
func (p Providers) IsProviderEnabled(name string) bool {
	return lo.Contains(p.enabled, strings.ToLower(strings.TrimSpace(name)))
}

// GitHubEnabled is IsProviderEnabled(GitHub)
func (p Providers) GitHubEnabled() bool { return p.IsProviderEnabled(GitHub) }

// EmailEnabled is IsProviderEnabled(Email)
func (p Providers) EmailEnabled() bool { return p.IsProviderEnabled(Email) }

// Enabled returns the enabled providers in configuration order
func (p Providers) Enabled() []string {
	return append([]string{}, p.enabled...)
}
