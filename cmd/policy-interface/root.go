package main

import (
	"github.com/spf13/cobra"
)

type globalFlags struct {
	configPath string
}

func newRootCommand(version string) *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "policy-interface",
		Short: "Validate and execute cloud compliance policies",
		Long: `policy-interface checks policy documents against the engine schema catalog
and dispatches them to the SQL report store, the document store or a
registered policy routine.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "config.yaml", "config file path")

	root.AddCommand(newValidateCommand(flags, version))
	root.AddCommand(newExecuteCommand(flags, version))
	root.AddCommand(newRoutinesCommand())
	return root
}
