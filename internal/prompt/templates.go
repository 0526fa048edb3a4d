// Package prompt assembles the system context sent to the language model.
package prompt

import (
	_ "embed"
	"fmt"

	"github.com/BurntSushi/toml"
)

//go:embed prompts.toml
var defaultTemplates string

// Templates holds the configurable prompt wording.
type Templates struct {
	Guided struct {
		Intro      string `toml:"intro"`
		Guidelines string `toml:"guidelines"`
	} `toml:"guided"`
	Counselor struct {
		Preamble   string `toml:"preamble"`
		Guidelines string `toml:"guidelines"`
	} `toml:"counselor"`
	Analysis struct {
		System  string `toml:"system"`
		Request string `toml:"request"`
		Closing string `toml:"closing"`
	} `toml:"analysis"`
}

// DefaultTemplates returns the embedded prompt wording.
func DefaultTemplates() (*Templates, error) {
	var t Templates
	if _, err := toml.Decode(defaultTemplates, &t); err != nil {
		return nil, fmt.Errorf("decode embedded prompts: %w", err)
	}
	return &t, nil
}

// LoadTemplates returns the embedded templates with any keys from path
// layered on top. An empty path returns the defaults.
func LoadTemplates(path string) (*Templates, error) {
	t, err := DefaultTemplates()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return t, nil
	}
	if _, err := toml.DecodeFile(path, t); err != nil {
		return nil, fmt.Errorf("decode prompts file %s: %w", path, err)
	}
	return t, nil
}
