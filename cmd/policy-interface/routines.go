package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ekaya-inc/policy-interface/pkg/rules"
)

func newRoutinesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "routines",
		Short: "List the registered policy routines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry := rules.NewRegistry()
			rules.RegisterBuiltins(registry, rules.Deps{})
			for _, key := range registry.Keys() {
				fmt.Fprintln(cmd.OutOrStdout(), key)
			}
			return nil
		},
	}
}
