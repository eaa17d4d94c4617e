package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot creates the root command and its subcommands.
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	c := &command{global: globalFlags}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createRunCommand(c),
		createPathCommand(c),
		createBackendURLCommand(c),
		createSidecarCommand(c),
		createSecretCommand(c),
		createWindowCommand(c),
		createHistoryCommand(c),
	)
	return root
}

// createRootCommand creates the root command with minimal persistent flags
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "chicken",
		Short: "Desktop shell host for the chicken-core sidecar",
		Long: `chicken hosts the chicken-core worker process: it spawns it on startup,
streams its output to the UI layer and kills it on exit.

Examples:
  chicken run --config=chicken.toml     # Run the shell
  chicken path                          # Show where the sidecar is resolved
  chicken sidecar status                # Ask a running shell for its state
  chicken secret set s3cr3t             # Store the secret in the OS keyring`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	return root
}

// createRunCommand creates the run subcommand
func createRunCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the shell until interrupted",
		Long: `Run the shell: start the command server, spawn the sidecar when autostart
is set, and on SIGINT/SIGTERM save the window state and kill the sidecar.
Log level changes in the config file apply without a restart.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Run(cmd.Context())
		},
	}
}

// createPathCommand creates the path subcommand
func createPathCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the resolved sidecar path",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Path(cmd.OutOrStdout())
		},
	}
}

// createBackendURLCommand creates the backend-url subcommand
func createBackendURLCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "backend-url",
		Short: "Print the sidecar's backend URL",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.BackendURL(cmd.OutOrStdout())
		},
	}
}

// createSidecarCommand groups the commands sent to a running shell.
func createSidecarCommand(c *command) *cobra.Command {
	flags := &APIFlags{}
	cmd := &cobra.Command{
		Use:   "sidecar",
		Short: "Control the sidecar of a running shell",
	}
	start := &cobra.Command{
		Use:   "start",
		Short: "Spawn the sidecar",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.SidecarStart(cmd.Context(), cmd.OutOrStdout(), *flags)
		},
	}
	shutdown := &cobra.Command{
		Use:   "shutdown",
		Short: "Kill the sidecar",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.SidecarShutdown(cmd.Context(), cmd.OutOrStdout(), *flags)
		},
	}
	status := &cobra.Command{
		Use:   "status",
		Short: "Show the sidecar state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.SidecarStatus(cmd.Context(), cmd.OutOrStdout(), *flags)
		},
	}
	addAPIFlags(cmd, flags)
	cmd.AddCommand(start, shutdown, status)
	return cmd
}

// createSecretCommand creates the secret subcommands. They use the local keyring.
func createSecretCommand(c *command) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage the secret stored in the OS keyring",
	}
	set := &cobra.Command{
		Use:   "set <value>",
		Short: "Store the secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.SecretSet(args[0])
		},
	}
	get := &cobra.Command{
		Use:   "get",
		Short: "Print the stored secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.SecretGet(cmd.OutOrStdout())
		},
	}
	del := &cobra.Command{
		Use:   "delete",
		Short: "Remove the stored secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.SecretDelete()
		},
	}
	cmd.AddCommand(set, get, del)
	return cmd
}

// createWindowCommand creates the window subcommands.
func createWindowCommand(c *command) *cobra.Command {
	flags := &APIFlags{}
	cmd := &cobra.Command{
		Use:   "window",
		Short: "Inspect the window state of a running shell",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Window(cmd.Context(), cmd.OutOrStdout(), *flags)
		},
	}
	fullscreen := &cobra.Command{
		Use:   "fullscreen",
		Short: "Toggle fullscreen",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.ToggleFullscreen(cmd.Context(), cmd.OutOrStdout(), *flags)
		},
	}
	addAPIFlags(cmd, flags)
	cmd.AddCommand(fullscreen)
	return cmd
}

// createHistoryCommand creates the history subcommand
func createHistoryCommand(c *command) *cobra.Command {
	flags := &HistoryFlags{}
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent sidecar lifecycle events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.History(cmd.Context(), cmd.OutOrStdout(), *flags)
		},
	}
	addAPIFlags(cmd, &flags.APIFlags)
	cmd.Flags().IntVar(&flags.Limit, "limit", 20, "maximum number of events")
	return cmd
}

func addAPIFlags(cmd *cobra.Command, flags *APIFlags) {
	cmd.PersistentFlags().StringVar(&flags.APIUrl, "api-url", "", "shell API URL (default derived from config, e.g. http://127.0.0.1:8010/api)")
	cmd.PersistentFlags().DurationVar(&flags.APITimeout, "api-timeout", 10*time.Second, "request timeout")
}
