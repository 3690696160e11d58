package main

import (
	"fmt"

	"github.com/alnah/go-docpipe/internal/yamlutil"
)

const redacted = "********"

// runConfig prints the effective configuration as YAML, after the config
// file, DOCPIPE_* variables and flags are merged.
func runConfig(args []string, env *Environment) error {
	flags, rest, err := parseConfigFlags(args, env.Stderr)
	if err != nil {
		return err
	}
	if len(rest) != 0 {
		return fmt.Errorf("%w: config takes no arguments", ErrUsage)
	}

	cfg, err := loadConfig(flags, env)
	if err != nil {
		return err
	}
	if cfg.Cache.Redis.Password != "" {
		cfg.Cache.Redis.Password = redacted
	}

	data, err := yamlutil.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return writeOutput(env, "", data)
}
