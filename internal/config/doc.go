// Package config loads and validates the YAML configuration of the streamd
// daemon. Values missing from the file keep their defaults.
package config
