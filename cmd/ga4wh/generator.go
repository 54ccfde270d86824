package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

// Generator writes starter configuration files for a new warehouse.
type Generator struct {
	dir string
}

func NewGenerator(dir string) *Generator {
	return &Generator{dir: dir}
}

// Generate writes .env and datasets.yaml templates, refusing to overwrite
// files that already exist.
func (g *Generator) Generate() error {
	files := map[string]string{
		".env":          envTemplate,
		"datasets.yaml": datasetsTemplate,
	}
	for name, content := range files {
		path := filepath.Join(g.dir, name)
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists, not overwriting", path)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	return nil
}

func runGenerate(cmd *cobra.Command, args []string) {
	dir, _ := cmd.Flags().GetString("dir")
	generator := NewGenerator(dir)
	if err := generator.Generate(); err != nil {
		fmt.Printf("Failed to generate configuration: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Generated starter configuration in %s\n", dir)
}
