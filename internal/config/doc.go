// Package config owns the lpio TOML file schema: strict loading, validation,
// conversion to session.Config and template generation.
package config
