// Package prompt holds the system prompts for each model-backed stage and
// the helpers that flatten pipeline data into prompt text.
package prompt

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var defaultCatalog []byte

// Catalog is the set of system prompts used by the pipeline.
type Catalog struct {
	Analyzer struct {
		System  string `yaml:"system"`
		Caption string `yaml:"caption"`
	} `yaml:"analyzer"`
	Structure struct {
		System string `yaml:"system"`
	} `yaml:"structure"`
	Generator struct {
		System string `yaml:"system"`
	} `yaml:"generator"`
	Refiner struct {
		System string `yaml:"system"`
	} `yaml:"refiner"`
}

// Default returns the embedded catalog.
func Default() *Catalog {
	c, err := parse(defaultCatalog, nil)
	if err != nil {
		panic(fmt.Sprintf("embedded prompt catalog: %v", err))
	}
	return c
}

// Load returns the embedded catalog overlaid with the prompts set in the
// YAML file at path. An empty path returns the default catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading prompts file: %w", err)
	}
	return parse(data, Default())
}

func parse(data []byte, base *Catalog) (*Catalog, error) {
	c := &Catalog{}
	if base != nil {
		*c = *base
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("decoding prompts: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) validate() error {
	for name, v := range map[string]string{
		"analyzer.system":  c.Analyzer.System,
		"analyzer.caption": c.Analyzer.Caption,
		"structure.system": c.Structure.System,
		"generator.system": c.Generator.System,
		"refiner.system":   c.Refiner.System,
	} {
		if v == "" {
			return fmt.Errorf("prompt %s is empty", name)
		}
	}
	return nil
}
