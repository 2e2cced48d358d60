// Package config loads, normalizes, and validates caravel configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks for remote
// and SMTP credentials. The Config type centralizes every knob a batch run
// needs: the project and its upload mounts, the remote store endpoint, mail
// routing, validation mode, logging and the run ledger.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths and clear validation errors.
package config
