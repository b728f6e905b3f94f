// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/sosodev/duration"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that accepts either Go syntax ("1.5s") or
// ISO 8601 ("PT1.5S") when parsed from YAML, the environment or a flag.
type Duration time.Duration

// ParseDuration parses Go or ISO 8601 duration syntax.
func ParseDuration(value string) (Duration, error) {
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return Duration(d), nil
	}
	d, err := duration.Parse(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", value)
	}
	return Duration(d.ToTimeDuration()), nil
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// Set implements pflag.Value.
func (d *Duration) Set(value string) error {
	parsed, err := ParseDuration(value)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Type implements pflag.Value.
func (*Duration) Type() string {
	return "duration"
}

func (d *Duration) UnmarshalText(text []byte) error {
	return d.Set(string(text))
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var value string
	if err := node.Decode(&value); err != nil {
		return err
	}
	return d.Set(value)
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}
