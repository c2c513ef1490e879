package main

import (
	"github.com/spf13/cobra"

	"github.com/ekaya-inc/policy-interface/pkg/models"
)

type validationOutput struct {
	PolicyType  models.PolicyType  `json:"policy_type"`
	QuerySource models.QuerySource `json:"query_source"`
	Schema      string             `json:"schema"`
}

func newValidateCommand(flags *globalFlags, version string) *cobra.Command {
	in := &inputFlags{}

	cmd := &cobra.Command{
		Use:     "validate",
		Short:   "Validate a policy and its arguments without executing it",
		Example: `  policy-interface validate --policy rule.json --args args.json --connection conn.json`,
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

			vr, err := a.policies.Validate(cmd.Context(), docs.policy, docs.execArgs, docs.connArgs)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), validationOutput{
				PolicyType:  vr.PolicyType,
				QuerySource: vr.QuerySource,
				Schema:      vr.SchemaName(),
			})
		},
	}
	addInputFlags(cmd, in)
	return cmd
}

func addInputFlags(cmd *cobra.Command, in *inputFlags) {
	cmd.Flags().StringVarP(&in.policyPath, "policy", "p", "", "policy document (JSON or YAML)")
	cmd.Flags().StringVarP(&in.argsPath, "args", "a", "", "execution arguments (JSON)")
	cmd.Flags().StringVar(&in.connectionPath, "connection", "", "connection arguments (JSON)")
	_ = cmd.MarkFlagRequired("policy")
}
