// accountant audits LLM-generated clinical test cases into a verified
// golden set and grades model outputs against it.
//
// Usage:
//
//	accountant audit   --registry R --aliases A --out DIR FILES...
//	accountant grade   --golden G --registry R --outputs O [--db scores.db]
//	accountant registry show|resolve --registry R
//	accountant runs    --db scores.db [--run-id ID]
//	accountant pipeline --registry R --outputs O FILES...
//	accountant golden  --golden G
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"accountant/internal/config"
	"accountant/internal/identity"
	"accountant/internal/logging"
	"accountant/internal/registry"
)

// version is set at build time via -ldflags.
var version = "dev"

type globalOptions struct {
	logLevel   string
	logFormat  string
	configPath string
	logOut     io.Writer

	policy config.Policy
}

func newRootCmd() *cobra.Command {
	g := &globalOptions{policy: config.Default()}
	root := &cobra.Command{
		Use:   "accountant",
		Short: "Verify generated clinical test cases and grade model outputs",
		Long: "accountant validates LLM-generated evidence traces against a signal registry,\n" +
			"writes a deduplicated golden set, and scores candidate outputs against it.",
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return g.setup(cmd)
		},
	}
	root.Version = version

	pf := root.PersistentFlags()
	pf.StringVar(&g.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	pf.StringVar(&g.logFormat, "log-format", "text", "Log format (text, json)")
	pf.StringVar(&g.configPath, "config", "", "Engine policy YAML (thresholds, intents, task table); empty = built-in defaults")

	root.AddCommand(newAuditCmd(g))
	root.AddCommand(newGradeCmd(g))
	root.AddCommand(newRegistryCmd(g))
	root.AddCommand(newRunsCmd(g))
	root.AddCommand(newPipelineCmd(g))
	root.AddCommand(newGoldenCmd(g))
	return root
}

func (g *globalOptions) setup(cmd *cobra.Command) error {
	level, err := logging.ParseLevel(g.logLevel)
	if err != nil {
		return err
	}
	out := g.logOut
	if out == nil {
		out = cmd.ErrOrStderr()
	}
	logging.Init(level, g.logFormat, out)

	if g.configPath == "" {
		return nil
	}
	p, err := config.Load(g.configPath)
	if err != nil {
		return err
	}
	g.policy = p
	logging.New("cli").Debug("policy loaded", "path", g.configPath, "tasks", len(p.Tasks))
	return nil
}

// loadRegistry reads the registry and, when aliasPath is set, the alias
// table.
func loadRegistry(regPath, aliasPath string) (*registry.Registry, *identity.Resolver, error) {
	if regPath == "" {
		return nil, nil, fmt.Errorf("--registry is required")
	}
	reg, err := registry.LoadFromPath(regPath)
	if err != nil {
		return nil, nil, err
	}
	table := identity.AliasTable{}
	if aliasPath != "" {
		table, err = identity.LoadAliases(aliasPath)
		if err != nil {
			return nil, nil, err
		}
	}
	return reg, identity.New(table), nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
