package main

import (
	"github.com/spf13/cobra"
)

func newExecuteCommand(flags *globalFlags, version string) *cobra.Command {
	in := &inputFlags{}

	cmd := &cobra.Command{
		Use:     "execute",
		Short:   "Validate and execute a policy, printing its violations",
		Example: `  policy-interface execute --policy rule.json --args args.json --connection conn.json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			docs, err := in.load()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), flags, version)
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			result, err := a.policies.ExecutePolicy(cmd.Context(), docs.policy, docs.execArgs, docs.connArgs, nil)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), result)
		},
	}
	addInputFlags(cmd, in)
	return cmd
}
