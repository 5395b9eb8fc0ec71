package call

import (
	"github.com/ValentinKolb/hwbridge/cmd/util"
	"github.com/ValentinKolb/hwbridge/rpc/client"
	"github.com/spf13/cobra"
)

var (
	bridge *client.Client

	// CallCommands represents the client command group
	CallCommands = &cobra.Command{
		Use:                "call",
		Short:              "Send requests to a running bridge",
		PersistentPreRunE:  setupClient,
		PersistentPostRunE: closeClient,
	}
)

func init() {
	// Add common RPC flags to the call command
	util.SetupRPCClientFlags(CallCommands)

	// Add subcommands
	CallCommands.AddCommand(connectCmd)
	CallCommands.AddCommand(rpcCmd)
	CallCommands.AddCommand(watchCmd)
	CallCommands.AddCommand(perfTestCmd)
}

// setupClient connects the bridge client
func setupClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	var err error
	bridge, err = util.NewClient()
	return err
}

func closeClient(*cobra.Command, []string) error {
	if bridge == nil {
		return nil
	}
	return bridge.Close()
}
