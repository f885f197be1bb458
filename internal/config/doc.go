// Package config provides configuration loading and validation for the
// unicast audio service. It handles YAML-based configuration with struct
// validation for the control API, tap ingest, audio sizing, per-session
// transmit defaults and logging.
package config
