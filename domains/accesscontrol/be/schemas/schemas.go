// Package schemas embeds the JSON Schemas for the settings payloads of the
// built-in access-control configuration types.
package schemas

import (
	_ "embed"
)

//go:embed document_grid.schema.json
var documentGrid string

//go:embed feature_flags.schema.json
var featureFlags string

// Defaults maps each built-in configuration type to its settings schema.
// Types without an entry are accepted without settings validation.
func Defaults() map[string]string {
	return map[string]string{
		"document-grid": documentGrid,
		"feature-flags": featureFlags,
	}
}
