// Package configs provides the embedded configuration template for dirc.
//
// The template is embedded at build time using Go's //go:embed directive,
// so it is available in all distributions: source builds, binary releases,
// and package-manager installs.
//
// It is used by `dirc config init`, which writes the template to the user
// config path (see internal/config.GetUserConfigPath). The values in the
// template mirror the hardcoded defaults in internal/config.NewConfig; to
// change the template, edit default.yaml in this directory and rebuild.
package configs

import _ "embed"

// DefaultConfigTemplate is the annotated starter configuration written by
// `dirc config init`. Every setting is present and documented, with
// non-defaults commented out.
//
//go:embed default.yaml
var DefaultConfigTemplate string
