package main

import (
	"github.com/spf13/cobra"

	"github.com/gogpu/blit"
	"github.com/gogpu/blit/config"
)

type rootOptions struct {
	cfgFile string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "blitsim",
		Short: "Run blit jobs on the software accelerator",
		Long: `blitsim runs compositing jobs through the blit executor using the
software accelerator and an emulated IOMMU.

All configuration options can be overridden with BLIT_<SECTION>_<KEY>
environment variables, e.g. BLIT_LOGGING_LEVEL=debug.`,
		Version:       blit.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "config file (YAML)")

	cmd.AddCommand(newRunCmd(opts))
	cmd.AddCommand(newReduceCmd())
	cmd.AddCommand(newConfigCmd(opts))
	cmd.CompletionOptions.DisableDefaultCmd = true
	return cmd
}

func (o *rootOptions) load() (*config.Config, error) {
	return config.Load(o.cfgFile)
}
