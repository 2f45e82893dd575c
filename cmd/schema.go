package cmd

import (
	"github.com/spf13/cobra"

	"github.com/openchargingcloud/wwcp/config"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON schema of the infrastructure document",
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := config.InfrastructureSchema()
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(append(b, '\n'))
		return err
	},
}

func init() { rootCmd.AddCommand(schemaCmd) }
