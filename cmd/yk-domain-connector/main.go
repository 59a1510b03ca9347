package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/yuriy-kovalchuk/yk-domain-connector/internal/config"
	_ "github.com/yuriy-kovalchuk/yk-domain-connector/internal/provider/providers"
)

var Version = "dev"

func main() {
	if err := newRootCommand().ExecuteContext(ctrl.SetupSignalHandler()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := zap.Options{
		Development: true,
	}
	zapFlags := flag.NewFlagSet("zap", flag.ContinueOnError)
	opts.BindFlags(zapFlags)

	var envFile string

	root := &cobra.Command{
		Use:   "yk-domain-connector",
		Short: "Connect customer domains to an Azure Container App",
		Long: `yk-domain-connector verifies a domain's DNS ownership records and then
adds and binds it as a custom hostname on an Azure Container App through
the az CLI. Running it without a subcommand starts the HTTP API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			ctrl.SetLogger(zap.New(zap.UseFlagOptions(&opts)))
			return config.LoadDotEnv(envFile)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
	root.PersistentFlags().AddGoFlagSet(zapFlags)
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the configuration; missing files are ignored")

	root.AddCommand(newServeCommand(), newCheckDNSCommand(), newVersionCommand())
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
		},
	}
}
