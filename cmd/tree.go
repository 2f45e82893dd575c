package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/openchargingcloud/wwcp/core/charging"
	"github.com/openchargingcloud/wwcp/core/ids"
)

type infrastructure = charging.Infrastructure

var (
	treeFile   string
	treeExpand bool
)

var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Print the network built from the infrastructure document as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		id, doc, err := loadInfrastructure(treeFile)
		if err != nil {
			return err
		}
		n, err := charging.LoadNetwork(withContext(cmd), id, doc, offlineRemotes)
		if err != nil {
			return err
		}
		defer n.Close()
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(n.ToJSON(charging.JSONOptions{ExpandChildren: treeExpand}))
	},
}

// offlineRemotes lets tree load documents that reference remote EVSEs
// without connecting to them.
func offlineRemotes(string, ids.EVSEID) (charging.RemoteEVSE, error) { return nil, nil }

func init() {
	treeCmd.Flags().StringVarP(&treeFile, "file", "f", "", "infrastructure document (defaults to network.infrastructure)")
	treeCmd.Flags().BoolVar(&treeExpand, "expand", true, "embed children instead of listing their ids")
	rootCmd.AddCommand(treeCmd)
}
