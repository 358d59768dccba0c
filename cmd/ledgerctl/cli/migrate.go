package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/battwheels/ledgercore/internal/platform/db"
)

func newMigrateCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate <up|down>",
		Short:     "Apply or roll back the embedded schema migrations",
		Example:   "  ledgerctl migrate up\n  ledgerctl migrate down",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{string(db.DirectionUp), string(db.DirectionDown)},
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := db.Direction(args[0])
			if err := rt.deps.Migrate(rt.cfg.PGDSN, dir, rt.logger); err != nil {
				return fmt.Errorf("migrate %s: %w", dir, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrations %s complete\n", dir)
			return nil
		},
	}
}
