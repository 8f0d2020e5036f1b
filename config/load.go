package config

import (
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// LoadInitConfig reads and validates the YAML file given to `init`. Keys
// missing from the file keep their defaults; unknown keys are an error.
func LoadInitConfig(path string) (*InitConfig, error) {
	cfg := DefaultInitConfig()
	if err := load(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.ValidateBasic(); err != nil {
		return nil, ErrConfig{Path: path, Err: err}
	}
	return cfg, nil
}

// LoadRunConfig reads and validates the YAML file given to `run`.
func LoadRunConfig(path string) (*RunConfig, error) {
	cfg := DefaultRunConfig()
	if err := load(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.ValidateBasic(); err != nil {
		return nil, ErrConfig{Path: path, Err: err}
	}
	return cfg, nil
}

func load(path string, out any) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return ErrConfig{Path: path, Err: err}
	}
	err := v.UnmarshalExact(out, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		return ErrConfig{Path: path, Err: err}
	}
	return nil
}
