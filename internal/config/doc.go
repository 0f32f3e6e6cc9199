// Package config loads, validates and persists the YAML settings shared by
// the redzone binaries, with environment variable overrides for containerised
// deployments (REDZONE_PORT, REDIS_ADDR, REDIS_PASSWORD, REDIS_DB).
package config
