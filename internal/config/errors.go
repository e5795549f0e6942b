package config

import "errors"

// Error variables for configuration loading.
var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrConfigFileRead     = errors.New("cannot read config file")
	ErrConfigInvalid      = errors.New("invalid config file")
	ErrDirEmpty           = errors.New("dir cannot be empty")
	ErrClassEmpty         = errors.New("class cannot be empty")
	ErrPollInterval       = errors.New("poll_interval must be a positive duration")
)
