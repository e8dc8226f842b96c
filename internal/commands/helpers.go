// Package commands implements the CLI subcommands for the wastecal binary.
package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dwsmith1983/wastecal/pkg/types"
)

func addDirFlag(cmd *cobra.Command, dir *string) {
	cmd.Flags().StringVarP(dir, "dir", "C", ".", "Project directory containing wastecal.yaml")
}

// loadBatch reads an ingest batch from a JSON or YAML file. "-" reads JSON
// from stdin.
func loadBatch(path string) (types.Batch, error) {
	var (
		b    types.Batch
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return b, fmt.Errorf("reading batch: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &b)
	default:
		err = json.Unmarshal(data, &b)
	}
	if err != nil {
		return b, fmt.Errorf("parsing batch %s: %w", path, err)
	}
	return b, nil
}
