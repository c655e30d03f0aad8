package main

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/panbanda/connascence/pkg/config"
)

func initCmd() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Write a configuration file with the default settings",
		Description: `Creates connascence.toml in the current directory. The file type follows
the extension of --output: .toml, .yaml/.yml or .json.

Examples:
  connascence init                            # connascence.toml
  connascence init -o .connascence/config.yaml
  connascence init --force                    # overwrite an existing file`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Value:   "connascence.toml",
				Usage:   "Output file path",
			},
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Overwrite existing config file",
			},
		},
		Action: runInitCmd,
	}
}

func runInitCmd(c *cli.Context) error {
	outputPath := c.String("output")

	if _, err := os.Stat(outputPath); err == nil && !c.Bool("force") {
		return fmt.Errorf("config file %q already exists (use --force to overwrite)", outputPath)
	}

	dir := filepath.Dir(outputPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %q: %w", dir, err)
		}
	}

	content, err := generateDefaultConfig(filepath.Ext(outputPath))
	if err != nil {
		return err
	}
	if err := os.WriteFile(outputPath, content, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Fprintf(c.App.Writer, "Created %s\n", outputPath)
	return nil
}

// generateDefaultConfig renders the default config in the format named by
// ext. Keys are the same ones config.Load accepts.
func generateDefaultConfig(ext string) ([]byte, error) {
	tree, err := configTree(config.DefaultConfig())
	if err != nil {
		return nil, err
	}

	var body []byte
	comment := "#"
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		body, err = yaml.Marshal(tree)
	case ".json":
		body, err = json.MarshalIndent(tree, "", "  ")
		comment = ""
	default:
		var t *toml.Tree
		if t, err = toml.TreeFromMap(tree); err == nil {
			body = []byte(t.String())
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to marshal default config: %w", err)
	}

	if comment == "" {
		return append(body, '\n'), nil
	}
	var buf strings.Builder
	buf.WriteString(comment + " connascence configuration\n")
	buf.WriteString(comment + " Unknown keys are rejected. Remove a key to use its default.\n\n")
	buf.Write(body)
	return []byte(buf.String()), nil
}

// configTree converts cfg into a generic map keyed by the config field
// names. Durations become strings and whole numbers become integers.
func configTree(cfg *config.Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var tree map[string]any
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, err
	}
	if engine, ok := tree["engine"].(map[string]any); ok {
		engine["timeout"] = cfg.Engine.Timeout.String()
	}
	return normalize(tree).(map[string]any), nil
}

func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			if val == nil {
				delete(t, k)
				continue
			}
			t[k] = normalize(val)
		}
		return t
	case []any:
		for i, val := range t {
			t[i] = normalize(val)
		}
		return t
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1<<53 {
			return int64(t)
		}
		return t
	}
	return v
}
