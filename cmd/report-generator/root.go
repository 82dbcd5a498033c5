package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/yourusername/report-generator/pkg/config"
)

const serviceName = "report-generator"

// NewRootCmd returns the root command. Without a subcommand it runs the server.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           serviceName,
		Short:         "Render dashboards to PDF/PNG and email them",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}

	rootCmd.AddCommand(newInitDirCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

func newInitDirCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "init-dir",
		Short: "Create the data directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := initDir(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&path, "path", "p", "./data", "directory to create")
	return cmd
}

// initDir creates path with permissions open to the browser process user
func initDir(path string) error {
	if err := os.MkdirAll(path, 0o777); err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	// MkdirAll is subject to the umask
	if err := os.Chmod(path, 0o777); err != nil {
		return fmt.Errorf("failed to chmod %s: %w", path, err)
	}
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", serviceName, config.Version)
		},
	}
}
