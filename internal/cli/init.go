package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/harun/toolgate/internal/config"
)

var initForce bool

const sampleUnit = `kind: echo
description: Echo the given arguments back
schema:
  type: object
  additionalProperties: true
`

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration",
	Long: `Write the default configuration file and a sample echo tool in the
discovery directory. An existing configuration is kept unless --force is set.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing configuration")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)
	configPath := loader.GetConfigPath()
	if configPath == "" {
		return fmt.Errorf("failed to determine config path")
	}

	if _, err := os.Stat(configPath); err == nil && !initForce {
		return fmt.Errorf("configuration already exists at %s (use --force to overwrite)", configPath)
	}

	cfg := config.DefaultConfig()
	cfg.Discovery.Dir = filepath.Join(filepath.Dir(configPath), "tools")

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := loader.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Configuration saved to: %s\n", configPath)

	if err := os.MkdirAll(cfg.Discovery.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create discovery directory: %w", err)
	}
	samplePath := filepath.Join(cfg.Discovery.Dir, "echo"+cfg.Discovery.Suffix)
	if _, err := os.Stat(samplePath); os.IsNotExist(err) {
		if err := os.WriteFile(samplePath, []byte(sampleUnit), 0644); err != nil {
			return fmt.Errorf("failed to write sample tool: %w", err)
		}
		fmt.Fprintf(out, "Sample tool written to: %s\n", samplePath)
	}

	fmt.Fprintln(out, "\nYou can now start toolgate with: toolgate serve")

	return nil
}
