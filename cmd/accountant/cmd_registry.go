package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"accountant/internal/format"
)

type registryOptions struct {
	registry string
	aliases  string
	format   string
}

func newRegistryCmd(_ *globalOptions) *cobra.Command {
	o := &registryOptions{}
	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Inspect the signal registry",
	}
	cmd.PersistentFlags().StringVar(&o.registry, "registry", "", "Signal registry file (YAML or JSON)")
	cmd.PersistentFlags().StringVar(&o.aliases, "aliases", "", "Alias table YAML (optional)")
	cmd.PersistentFlags().StringVar(&o.format, "format", "ascii", "Table format (ascii, markdown)")

	show := &cobra.Command{
		Use:   "show",
		Short: "List registry signals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mode, err := format.ParseMode(o.format)
			if err != nil {
				return err
			}
			reg, _, err := loadRegistry(o.registry, o.aliases)
			if err != nil {
				return err
			}
			tb := format.NewTable(mode)
			tb.Header("Signal", "Legacy", "Deny templates", "Description")
			for _, e := range reg.Entries() {
				tb.Row(e.ID, e.LegacyID, strings.Join(e.DenyTemplates, "; "), format.Truncate(e.Description, 50))
			}
			tb.Footer("TOTAL", reg.Len(), "", "")
			w := cmd.OutOrStdout()
			if reg.Domain() != "" || reg.Metric() != "" {
				fmt.Fprintf(w, "%s / %s\n", reg.Domain(), reg.Metric())
			}
			fmt.Fprintln(w, tb.String())
			return nil
		},
	}

	resolve := &cobra.Command{
		Use:   "resolve ID...",
		Short: "Show the canonical id each raw identifier resolves to",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := format.ParseMode(o.format)
			if err != nil {
				return err
			}
			reg, res, err := loadRegistry(o.registry, o.aliases)
			if err != nil {
				return err
			}
			tb := format.NewTable(mode)
			tb.Header("Input", "Canonical", "Resolved")
			for _, raw := range args {
				id, ok := res.Resolve(raw, reg)
				if !ok {
					id = "-"
				}
				tb.Row(raw, id, format.BoolMark(ok))
			}
			fmt.Fprintln(cmd.OutOrStdout(), tb.String())
			return nil
		},
	}

	cmd.AddCommand(show, resolve)
	return cmd
}
