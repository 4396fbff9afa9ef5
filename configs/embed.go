// Package configs provides the embedded configuration template written by
// `quill config init`. Embedding at build time keeps the template available
// in every distribution, source builds included.
package configs

import _ "embed"

// ProjectConfigTemplate is the annotated template for .quill.yaml.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
