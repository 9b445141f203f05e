package cli

import (
	"sort"

	"github.com/spf13/cobra"

	"github.com/matzehuels/fusegraph/pkg/ir"
)

// newPatternsCmd creates the patterns command for inspecting the operator
// pattern registry.
func newPatternsCmd(configPath *string) *cobra.Command {
	var interactive bool

	cmd := &cobra.Command{
		Use:   "patterns [op...]",
		Short: "Show the operator pattern registry",
		Long: `Show the operator pattern registry.

Without arguments, all registered operators are listed with their fusion
pattern. With operator names as arguments, only those are shown (unknown
operators report as opaque). Config pattern overrides are applied first.

Examples:
  fusegraph patterns
  fusegraph patterns conv2d relu my_op
  fusegraph patterns --interactive`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			reg := ir.NewRegistry()
			cfg.ApplyPatterns(reg)

			if len(args) > 0 {
				for _, op := range args {
					printKeyValue(op, reg.Lookup(op).String())
				}
				return nil
			}

			names := reg.Names()
			sort.Strings(names)
			if interactive {
				return browsePatterns(names, reg)
			}
			for _, name := range names {
				printKeyValue(name, reg.Lookup(name).String())
			}
			printInfo("%d operators registered", len(names))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "browse the registry interactively")
	return cmd
}
