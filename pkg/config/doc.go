/*
Package config loads and validates driver configuration.

Configuration comes from a YAML file (see Load) or is assembled
programmatically starting from New. Validation is strict and happens once
at setup: a malformed configuration (for example, an empty cluster API
address list) is fatal and never retried.
*/
package config
