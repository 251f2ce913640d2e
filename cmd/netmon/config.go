package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"netmon/pkg/config"
)

func newConfigCommand(logger *zap.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management commands",
		Long:  `Commands for managing netmon configuration files.`,
	}

	cmd.AddCommand(newConfigInitCommand(logger))
	cmd.AddCommand(newConfigValidateCommand(logger))

	return cmd
}

func newConfigInitCommand(logger *zap.Logger) *cobra.Command {
	var outputFile string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new configuration file",
		Long:  `Create a new configuration file with default values.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if outputFile == "" {
				outputFile = "netmon.yaml"
			}

			// Check if file already exists
			if _, err := os.Stat(outputFile); err == nil {
				return fmt.Errorf("configuration file already exists: %s", outputFile)
			}

			logger.Info("Creating configuration file", zap.String("file", outputFile))

			if err := config.WriteToFile(config.Default(), outputFile); err != nil {
				return fmt.Errorf("failed to write configuration file: %w", err)
			}

			logger.Info("Configuration file created successfully", zap.String("file", outputFile))
			fmt.Printf("Configuration file created: %s\n", outputFile)

			return nil
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "netmon.yaml", "Output configuration file")

	return cmd
}

func newConfigValidateCommand(logger *zap.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [config-file]",
		Short: "Validate a configuration file",
		Long:  `Validate the syntax and content of a configuration file.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configFile := "netmon.yaml"
			if len(args) > 0 {
				configFile = args[0]
			}

			logger.Info("Validating configuration file", zap.String("file", configFile))

			cfg, err := config.LoadFromFile(configFile)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			if err := config.Validate(cfg); err != nil {
				return fmt.Errorf("configuration is invalid: %w", err)
			}

			fmt.Printf("Configuration is valid: %s\n", configFile)
			return nil
		},
	}

	return cmd
}
