package main

import (
	"encoding/json"

	"github.com/ashureev/ecolite-widget/internal/handoff"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newLinksCommand() *cobra.Command {
	var ua, name, query string

	cmd := &cobra.Command{
		Use:   "links <href>",
		Short: "Print the deep links a click on href would produce",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hc := handoffConfig(cfg)
			decorator := handoff.NewDecorator(hc.Host,
				func() string { return name },
				func() string { return query },
			)
			set, err := handoff.NewBuilder(hc, decorator).Build(args[0])
			if err != nil {
				return errors.Wrap(err, "build links")
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(handoff.Preview{Platform: handoff.DetectPlatform(ua), Links: set})
		},
	}
	cmd.Flags().StringVar(&ua, "ua", "", "visitor User-Agent used to pick the platform")
	cmd.Flags().StringVar(&name, "name", "", "remembered visitor name")
	cmd.Flags().StringVar(&query, "query", "", "last search query")
	return cmd
}
