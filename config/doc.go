// Package config defines the YAML configuration for an audiolink process:
// client identity, the node pool, connection tuning, and the optional stats
// database. Values of the form ${VAR} are expanded from the environment when
// the file is loaded.
package config
