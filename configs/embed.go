// Package configs provides the configuration templates written by
// `docrag config init`.
//
// Templates are embedded at build time so every distribution carries them.
//
//   - user-config.example.yaml: machine-wide settings (providers, retry
//     policy, logging) at ~/.config/docrag/config.yaml
//   - project-config.example.yaml: per-project settings (chunking, store,
//     retrieval, ingest) at .docrag.yaml
//
// Both are plain YAML understood by internal/config; every key is optional.
package configs

import _ "embed"

// UserConfigTemplate is written by `docrag config init`.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string

// ProjectConfigTemplate is written by `docrag config init --in-project`.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
