package cmd

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/oshokin/depstage/internal/config"
	"github.com/oshokin/depstage/internal/domain/staging"
	"github.com/oshokin/depstage/internal/service/locker"
	"github.com/oshokin/depstage/internal/service/stager"
	"github.com/oshokin/depstage/internal/service/toolchain"
)

// newResolveCommand prints the resolved references, one per line.
func newResolveCommand(flags *globalFlags) *cobra.Command {
	var manifestPath string

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Print the package references resolved for the platform",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if manifestPath == "" {
				cfg, err := config.Load(flags.configPath)
				if err != nil {
					return fmt.Errorf("load settings: %w", err)
				}

				manifestPath = cfg.ManifestFile
			}

			lock, err := locker.Resolve(manifestPath, flags.platform)
			if err != nil {
				return err
			}

			for _, ref := range lock.Requires {
				if _, err = fmt.Fprintln(cmd.OutOrStdout(), ref); err != nil {
					return err
				}
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&manifestPath, "manifest", "m", "", "manifest override (YAML or JSONC), defaults to the built-in manifest")

	return cmd
}

// newLockCommand writes the requirements lock.
func newLockCommand(flags *globalFlags) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "lock",
		Short: "Write the requirements lock for the package manager",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return locker.Run(cmd.Context(), &locker.Options{
				ConfigPath: flags.configPath,
				Platform:   flags.platform,
				Output:     output,
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", locker.DefaultLockFilename, "lock file path")

	return cmd
}

// newStageCommand stages the fetched packages.
func newStageCommand(flags *globalFlags) *cobra.Command {
	options := new(stager.Options)

	cmd := &cobra.Command{
		Use:   "stage",
		Short: "Copy, patch, and sign the fetched packages into the staging root",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			options.ConfigPath = flags.configPath
			options.Platform = flags.platform

			return stager.Run(cmd.Context(), options)
		},
	}

	cmd.Flags().StringVar(&options.StagingRoot, "root", "", "staging root, overrides the configuration")
	cmd.Flags().StringVar(&options.PackagesDir, "packages", "", "directory holding one sub-directory per fetched package")
	cmd.Flags().StringVar(&options.RootsFile, "roots", "", "YAML file mapping package names to their roots")

	return cmd
}

// newToolchainCommand writes the CMake fragment.
func newToolchainCommand(flags *globalFlags) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "toolchain",
		Short: "Write a CMake fragment with the upstream version of every dependency",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return toolchain.Run(cmd.Context(), &toolchain.Options{
				ConfigPath: flags.configPath,
				Platform:   flags.platform,
				Output:     output,
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", toolchain.DefaultOutputFilename, "fragment path")

	return cmd
}

// newStatusCommand prints the receipt of the last staging pass.
func newStatusCommand(flags *globalFlags) *cobra.Command {
	var stagingRoot string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the receipt of the last staging pass",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			options := &stager.Options{ConfigPath: flags.configPath, StagingRoot: stagingRoot}

			r, err := stager.LastReceipt(cmd.Context(), options)
			if err != nil {
				return err
			}

			printReceipt(cmd, r)

			return nil
		},
	}

	cmd.Flags().StringVar(&stagingRoot, "root", "", "staging root, overrides the configuration")

	return cmd
}

func printReceipt(cmd *cobra.Command, r *staging.Receipt) {
	out := cmd.OutOrStdout()

	_, _ = fmt.Fprintf(out, "staged at:    %s\n", r.Timestamp.Local().Format(time.RFC3339))
	_, _ = fmt.Fprintf(out, "staging root: %s\n", r.StagingRoot)
	_, _ = fmt.Fprintf(out, "platform:     %s\n", r.Platform)
	_, _ = fmt.Fprintf(out, "tool version: %s\n", r.ToolVersion)

	if r.Actor != nil {
		_, _ = fmt.Fprintf(out, "staged by:    %s@%s\n", r.Actor.Username, r.Actor.Hostname)
	}

	steps := make([]string, 0, len(r.Counts))
	for step := range r.Counts {
		steps = append(steps, step)
	}

	sort.Strings(steps)

	for _, step := range steps {
		_, _ = fmt.Fprintf(out, "%-13s %d\n", step+":", r.Counts[step])
	}

	_, _ = fmt.Fprintf(out, "packages:     %d\n", len(r.References))
}
