/*
Package config provides type-safe configuration extraction from
map[string]any, used to feed the runtime settings from YAML or JSON
files.

# Basic Usage

Create a Config from any map and extract values with defaults:

	cfg := config.New(map[string]any{
	    "fallback":        "raise",
	    "piping_operator": "|",
	    "assume_piping":   true,
	})

	fallback := cfg.String("fallback", "normal_warning") // "raise"
	assume := cfg.Bool("assume_piping", false)           // true
	missing := cfg.String("missing", "default")          // "default"

All accessors return the default value if the key is missing, the value
cannot be converted to the requested type, or the conversion would lose
precision (a float with a fraction asked for as an int).

# File Loading

	cfg, err := config.FromFile("pipekit.yaml")
	if err != nil {
	    log.Fatal(err)
	}

	// Or load from bytes
	cfg, err = config.FromYAML(yamlBytes)
	cfg, err = config.FromJSON(jsonBytes)

The recognized runtime keys are applied with pipekit.ConfigureFrom.

# Thread Safety

Config is safe for concurrent read access. The underlying map is not
modified after creation.
*/
package config
