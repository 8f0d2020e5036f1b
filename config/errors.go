package config

import (
	"errors"
	"fmt"
)

var ErrUnknownLogFormat = errors.New("unknown log_format (must be 'plain' or 'json')")

// ErrInSection is returned if validate basic does not pass for any underlying config service.
type ErrInSection struct {
	Err     error
	Section string
}

func (e ErrInSection) Error() string {
	return fmt.Sprintf("error in [%s] section: %s", e.Section, e.Err.Error())
}

func (e ErrInSection) Unwrap() error {
	return e.Err
}

// ErrConfig marks every failure to obtain a usable configuration: a
// missing or unreadable file, unknown keys, or failed validation.
type ErrConfig struct {
	Path string
	Err  error
}

func (e ErrConfig) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("invalid configuration: %v", e.Err)
	}
	return fmt.Sprintf("invalid configuration %s: %v", e.Path, e.Err)
}

func (e ErrConfig) Unwrap() error {
	return e.Err
}
