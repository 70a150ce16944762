// Package configs embeds the configuration templates written by
// `legalwise init`.
//
// Configuration hierarchy (see internal/config Load):
//  1. Defaults (config.NewConfig)
//  2. User config (~/.config/legalwise/config.yaml)
//  3. Project config (.legalwise.yaml)
//  4. .env in the project directory
//  5. LEGALWISE_* environment variables
package configs

import _ "embed"

// UserConfigTemplate holds machine-level settings: model hosts and
// endpoints shared by every project.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string

// ProjectConfigTemplate holds per-project settings: store location and
// retrieval tuning.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
