// Package config manages settings stored at ~/.scenariocat/config.yaml and
// in an optional scenariocat.yaml at the project root. Project values win
// over user values; SCENARIOCAT_* environment variables win over both.
package config
