package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/atvirokodosprendimai/adminsettings/internal/core/domain"
	"github.com/atvirokodosprendimai/adminsettings/internal/core/validation"
)

var errNoValuesFile = errors.New("values file argument is required")

func validateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "Validate a settings file offline and print the error map",
		ArgsUsage: "<values-file>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "section",
				Usage: "Settings section the file holds (general, service or payment)",
			},
			&cli.StringFlag{
				Name:  "schema",
				Usage: "Rule document (JSON or YAML) used instead of the builtin rules",
			},
		},
		Action: func(_ context.Context, c *cli.Command) error {
			path := c.Args().First()
			if path == "" {
				return errNoValuesFile
			}
			valid, err := runValidate(c.Root().Writer, c.String("section"), c.String("schema"), path)
			if err != nil {
				return err
			}
			if !valid {
				return cli.Exit("", 1)
			}
			return nil
		},
	}
}

// runValidate prints the error map of the values file to w. A section selects
// the strict section decoder; without one the file is checked against the
// schema file as a plain document.
func runValidate(w io.Writer, section, schemaPath, valuesPath string) (bool, error) {
	raw, err := readDocument(valuesPath)
	if err != nil {
		return false, fmt.Errorf("read values: %w", err)
	}

	var rules *validation.Compiled
	if schemaPath != "" {
		schema, err := readSchema(schemaPath)
		if err != nil {
			return false, err
		}
		if rules, err = validation.Compile(schema); err != nil {
			return false, err
		}
	}

	var errs validation.ErrorMap
	if section != "" {
		s, err := domain.ParseSection(section)
		if err != nil {
			return false, fmt.Errorf("%w: %q", err, section)
		}
		if rules == nil {
			schema, err := domain.BuiltinRules(s)
			if err != nil {
				return false, err
			}
			rules = validation.MustCompile(schema)
		}
		if _, errs, err = domain.ValidateDocument(s, raw, rules); err != nil {
			return false, err
		}
	} else {
		if rules == nil {
			return false, errors.New("either --section or --schema is required")
		}
		var values validation.Values
		if err := json.Unmarshal(raw, &values); err != nil {
			return false, fmt.Errorf("values must be an object: %w", err)
		}
		if errs, err = rules.Validate(values); err != nil {
			return false, err
		}
	}

	if errs == nil {
		errs = validation.ErrorMap{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(errs); err != nil {
		return false, err
	}
	return errs.Empty(), nil
}

// readDocument returns the file as JSON. YAML files are converted.
func readDocument(path string) (json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !isYAML(path) {
		return data, nil
	}
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}

func readSchema(path string) (validation.Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	if isYAML(path) {
		return validation.ParseSchemaYAML(data)
	}
	return validation.ParseSchemaJSON(data)
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
