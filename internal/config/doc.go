// Package config provides configuration loading and validation for the form relay service.
// Compiled-in defaults are returned by Default; an optional YAML file overrides them.
package config
