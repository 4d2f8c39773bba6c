// Package patterns provides embedded default configuration: regex
// recognizer definitions in the Presidio-compatible YAML format, the
// default taxonomy table mapping detector-native labels to canonical
// categories, and the default per-category anonymization transforms.
package patterns

import _ "embed"

//go:embed pii_default.yaml
var piiDefaultYAML []byte

//go:embed taxonomy_default.yaml
var taxonomyDefaultYAML []byte

//go:embed transforms_default.yaml
var transformsDefaultYAML []byte

// PIIDefaultYAML returns the embedded default PII recognizer definitions.
func PIIDefaultYAML() []byte { return piiDefaultYAML }

// TaxonomyDefaultYAML returns the embedded default taxonomy table.
func TaxonomyDefaultYAML() []byte { return taxonomyDefaultYAML }

// TransformsDefaultYAML returns the embedded default anonymization transforms.
func TransformsDefaultYAML() []byte { return transformsDefaultYAML }
