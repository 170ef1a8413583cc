package main

import (
	"github.com/core-tools/hsu-uplink/pkg/agentconfig"

	"github.com/spf13/cobra"
)

type connectionFlags struct {
	serverPath string
	port       int
	verbose    bool
}

func NewRootCmd() *cobra.Command {
	flags := &connectionFlags{}

	root := &cobra.Command{
		Use:           "agentctl",
		Short:         "Uplink agent control CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.serverPath, "server", "", "path to the agent executable to launch")
	root.PersistentFlags().IntVar(&flags.port, "port", agentconfig.DefaultPort, "port of a running agent")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "log connection diagnostics")

	root.AddCommand(newStatusCmd(flags))
	root.AddCommand(newHealthyCmd(flags))
	root.AddCommand(newStopCmd(flags))
	root.AddCommand(newUpdateCmd(flags))
	root.AddCommand(newPushCmd(flags))

	return root
}
