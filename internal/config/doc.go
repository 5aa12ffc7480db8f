// Package config manages user-level settings stored at ~/.reefcat/config.yaml.
// It provides functions to load, read, and write configuration keys such as
// the metadata tree location and the default manifest output path.
package config
