// Package confloader loads layered configuration with koanf.
//
// Priority (highest to lowest):
//
//  1. Explicit overrides (command-line flags)
//  2. Environment variables
//  3. YAML configuration file
//  4. Default values
//
// A companion fsnotify Watcher re-reads the file on change so settings
// like the log level can be adjusted without a restart.
package confloader
