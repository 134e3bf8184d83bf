package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mikequentel/socpost/internal/history"
	"github.com/mikequentel/socpost/internal/publish"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var (
		platform string
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent publish attempts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := ctx.openHistory(cfg)
			if err != nil {
				return err
			}
			if store == nil {
				return errors.New("history is disabled (history.enabled = false)")
			}
			defer store.Close()

			q := history.Query{Limit: limit}
			if platform != "" {
				if q.Platform, err = publish.ParsePlatform(platform); err != nil {
					return err
				}
			}
			entries, err := store.Recent(cmd.Context(), q)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No publish attempts recorded.")
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				result := e.PostID
				if !e.Success {
					result = "error: " + string(e.ErrorKind)
				}
				rows = append(rows, []string{
					e.PostedAt.Local().Format("2006-01-02 15:04:05"),
					e.Platform.Title(),
					string(e.Strategy),
					summarize(e.Message, 40),
					fmt.Sprint(e.MediaCount),
					result,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Posted", "Platform", "Strategy", "Message", "Media", "Result"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().StringVarP(&platform, "platform", "p", "", "Only this platform")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum rows")
	return cmd
}

func summarize(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
