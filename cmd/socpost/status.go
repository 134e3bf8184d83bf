package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mikequentel/socpost/internal/publish"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var platform string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Verify credentials for one or all platforms",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			orch := ctx.orchestrator(cfg, nil)

			var statuses []publish.Status
			if platform == "" {
				statuses = orch.CheckAll(cmd.Context())
			} else {
				p, err := publish.ParsePlatform(platform)
				if err != nil {
					return err
				}
				statuses = []publish.Status{orch.CheckStatus(cmd.Context(), p)}
			}

			rows := make([][]string, 0, len(statuses))
			for _, st := range statuses {
				state := "✅ ok"
				if !st.CredentialsValid {
					state = "❌ failed"
				}
				rows = append(rows, []string{st.Platform.Title(), state, st.AccountIdentity, st.Error})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Platform", "Credentials", "Account", "Error"}, rows, nil))
			return nil
		},
	}
	cmd.Flags().StringVarP(&platform, "platform", "p", "", "Check only this platform")
	return cmd
}
