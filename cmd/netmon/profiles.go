package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"netmon/pkg/profile"
)

func newProfilesCommand(logger *zap.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "Profile set management commands",
		Long:  `Commands for inspecting and validating mock profile sets.`,
	}

	cmd.AddCommand(newProfilesValidateCommand(logger))
	cmd.AddCommand(newProfilesShowCommand(logger))

	return cmd
}

func newProfilesValidateCommand(logger *zap.Logger) *cobra.Command {
	var seed int64

	cmd := &cobra.Command{
		Use:   "validate <profiles-file>",
		Short: "Validate a profile set file",
		Long:  `Load a YAML/JSON profile set and check it for schema and identifier errors.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]

			if _, err := os.Stat(path); os.IsNotExist(err) {
				return fmt.Errorf("profiles file not found: %s", path)
			}

			profiles, err := profile.LoadFile(path, seed)
			if err != nil {
				return fmt.Errorf("profile set is invalid: %w", err)
			}

			logger.Info("Profile set validated",
				zap.String("file", path),
				zap.Int("profiles", len(profiles)))
			fmt.Printf("Profile set is valid: %d profiles\n", len(profiles))

			return nil
		},
	}

	cmd.Flags().Int64Var(&seed, "seed", 0, "Seed for templated profile bodies")

	return cmd
}

func newProfilesShowCommand(logger *zap.Logger) *cobra.Command {
	var (
		seed        int64
		openapiSpec bool
	)

	cmd := &cobra.Command{
		Use:   "show <file>",
		Short: "Show the profiles a file resolves to",
		Long: `Load a profile set, or derive one from an OpenAPI 3 document with
--openapi, and print the resulting profiles.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]

			var (
				profiles []*profile.Profile
				err      error
			)
			if openapiSpec {
				profiles, err = profile.FromOpenAPI(path)
			} else {
				profiles, err = profile.LoadFile(path, seed)
			}
			if err != nil {
				return fmt.Errorf("failed to load profiles: %w", err)
			}

			for _, p := range profiles {
				fmt.Printf("%s %s (priority %d)\n", p.Request.Method, p.Request.Pattern.String(), p.Priority)
				for _, response := range p.Responses {
					fmt.Printf("  %s: %d, %s\n", response.Identifier, response.StatusCode, response.Repeatability.String())
				}
			}

			return nil
		},
	}

	cmd.Flags().Int64Var(&seed, "seed", 0, "Seed for templated profile bodies")
	cmd.Flags().BoolVar(&openapiSpec, "openapi", false, "Treat the file as an OpenAPI 3 document")

	return cmd
}
