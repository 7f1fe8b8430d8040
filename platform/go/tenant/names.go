package tenant

import (
	"fmt"
	"regexp"
	"strings"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// ValidSlug reports whether s is a URL/subdomain-safe tenant slug.
func ValidSlug(s string) bool {
	return slugPattern.MatchString(s)
}

// ToSnake converts a kebab-case slug into snake_case for database names.
func ToSnake(slug string) string {
	return strings.ReplaceAll(strings.ToLower(slug), "-", "_")
}

// BuildDatabaseName returns the canonical database name for a tenant and
// year. Format: tenant_<slugSnake>_<year>. Rotation appends exactly one such
// name per year to the tenant's database history.
func BuildDatabaseName(slug string, year int) string {
	return fmt.Sprintf("tenant_%s_%d", ToSnake(slug), year)
}
