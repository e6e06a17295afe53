package main

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/John-Robertt/v2clash/internal/convert"
	"github.com/John-Robertt/v2clash/internal/metrics"
)

var errNoValidProxies = errors.New("no valid proxies: every link was skipped")

type convertFlags struct {
	links    []string
	subs     []string
	inbounds []string
	email    string
}

func newConvertCmd(rf *rootFlags) *cobra.Command {
	cf := &convertFlags{}
	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Run one conversion and write the result",
		Long: `Run a single conversion. The merged YAML goes to --output (or the configured
output) and to stdout when no output is set. Skipped links are logged.

Examples:
  v2clash convert --links links.txt --template template.yaml --output clash.yaml
  v2clash convert --inbounds inbounds.json --email alice --template template.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, rf)
			if err != nil {
				return err
			}
			overrideString(cmd, "template", &cfg.Template)
			overrideString(cmd, "output", &cfg.Output)
			overrideString(cmd, "selector", &cfg.Selector.Name)
			overrideString(cmd, "position", &cfg.Selector.Position)
			overrideSources(cmd, cfg, cf.links, cf.subs, cf.inbounds, cf.email)
			// One-shot runs never schedule anything.
			cfg.Refresh = ""

			a, err := newApp(cfg, cmd.ErrOrStderr(), metrics.New(prometheus.NewRegistry()))
			if err != nil {
				return err
			}

			out, err := a.conv.ConvertRequest(cmd.Context(), convert.Request{Email: cf.email})
			if err != nil {
				return err
			}
			for _, s := range out.Skipped {
				a.log.WithFields(logrus.Fields{
					"ordinal": s.Ordinal,
					"kind":    s.Kind.String(),
					"snippet": s.Snippet,
				}).Debug("link skipped")
			}
			if out.Empty {
				return errNoValidProxies
			}
			if cfg.Output == "" {
				_, err := cmd.OutOrStdout().Write(out.YAML)
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d proxies to %s (%d skipped)\n", len(out.Proxies), cfg.Output, len(out.Skipped))
			return nil
		},
	}

	cmd.Flags().String("template", "", "template path or URL")
	cmd.Flags().StringP("output", "o", "", "artifact path; stdout when empty")
	cmd.Flags().String("selector", "", "selector group name")
	cmd.Flags().String("position", "", "where a missing selector group goes (front, back)")
	cmd.Flags().StringSliceVar(&cf.links, "links", nil, "link file (repeatable); replaces configured sources")
	cmd.Flags().StringSliceVar(&cf.subs, "sub", nil, "subscription URL (repeatable); replaces configured sources")
	cmd.Flags().StringSliceVar(&cf.inbounds, "inbounds", nil, "3x-ui inbound export (repeatable); replaces configured sources")
	cmd.Flags().StringVar(&cf.email, "email", "", "client email for inbound sources")
	return cmd
}
