package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

var (
	// Version is set by build flags.
	Version = "dev"
	// GitCommit is set by build flags.
	GitCommit = "unknown"
)

type rootFlags struct {
	configFile string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	rf := &rootFlags{}
	root := &cobra.Command{
		Use:   "v2clash",
		Short: "Convert vmess/vless share links into a Clash configuration",
		Long: `v2clash decodes vmess:// and vless:// share links, drops the ones it cannot
read and merges the rest into a Clash template: proxies are replaced and a
selector group listing every node is kept in proxy-groups. Everything else in
the template passes through unchanged.

Links come from local files, remote subscriptions or saved 3x-ui inbound
exports, as configured in config.yaml.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&rf.configFile, "config", "c", "config.yaml", "config file path")
	root.PersistentFlags().StringVar(&rf.logLevel, "log-level", "", "override log level (debug, info, warn, error); LOG_LEVEL is used when unset")
	root.PersistentFlags().StringVar(&rf.logFormat, "log-format", "", "override log format (text, json)")

	root.AddCommand(
		newServeCmd(rf),
		newConvertCmd(rf),
		newHealthcheckCmd(rf),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "v2clash %s\n", Version)
			fmt.Fprintf(out, "Git Commit: %s\n", GitCommit)
			fmt.Fprintf(out, "Go Version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

// Execute runs the root command.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
