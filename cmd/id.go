package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openchargingcloud/wwcp/core/ids"
)

var idOperator string

var idCmd = &cobra.Command{
	Use:   "id",
	Short: "Identifier helpers",
}

var idGenerateCmd = &cobra.Command{
	Use:       "generate pool|station <parts...>",
	Short:     "Derive a content-addressed pool or station id",
	Args:      cobra.MinimumNArgs(2),
	ValidArgs: []string{"pool", "station"},
	RunE: func(cmd *cobra.Command, args []string) error {
		op, err := ids.ParseOperatorID(idOperator)
		if err != nil {
			return err
		}
		var id fmt.Stringer
		switch args[0] {
		case "pool":
			id = ids.GeneratePoolID(op, args[1:]...)
		case "station":
			id = ids.GenerateStationID(op, args[1:]...)
		default:
			return fmt.Errorf("unknown id kind %q", args[0])
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), id)
		return err
	},
}

func init() {
	idGenerateCmd.Flags().StringVar(&idOperator, "operator", "", "operator id, e.g. DE*GEF")
	_ = idGenerateCmd.MarkFlagRequired("operator")
	idCmd.AddCommand(idGenerateCmd)
	rootCmd.AddCommand(idCmd)
}
