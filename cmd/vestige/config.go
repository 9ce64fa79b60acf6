package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/panbanda/vestige/internal/output"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter .vestige.toml to the current directory",
	RunE:  runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE:  runConfigShow,
}

func init() {
	configInitCmd.Flags().Bool("force", false, "Overwrite an existing config file")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}

const starterConfig = `# vestige configuration

[checks]
unused_variable = true
unread_variable = true
unassigned_variable = true
unused_allocated_memory = true
unused_struct_member = true
insufficient_type_info = true

[exclude]
patterns = ["*.min.c", "*_generated.c", "*_generated.h"]
dirs = ["vendor", "third_party", "build"]
gitignore = true

[library]
# Extra function knowledge files (YAML, TOML or JSON)
files = []

[cache]
enabled = true
dir = ".vestige/cache"
ttl = 24

[output]
format = "text"
color = true

# Parallel workers; 0 selects the default
jobs = 0
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	const path = ".vestige.toml"

	force, _ := cmd.Flags().GetBool("force")
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	if err := os.WriteFile(path, []byte(starterConfig), 0o644); err != nil {
		return err
	}

	color.Green("Wrote %s", path)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	formatter, err := output.NewFormatter(output.FormatJSON, "", false)
	if err != nil {
		return err
	}
	defer formatter.Close()

	return formatter.Output(cfg)
}
