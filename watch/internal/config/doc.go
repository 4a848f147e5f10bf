// Package config loads the notifyhub-watch configuration.
//
// Precedence, lowest to highest: built-in defaults, the optional YAML file,
// environment variables (NOTIFYHUB_URL, NOTIFYHUB_ORIGIN, LOG_LEVEL).
// Load validates the result; an invalid config is an error, never silently
// patched.
package config
