package cmd

import (
	"fmt"
	"github.com/ValentinKolb/hwbridge/cmd/call"
	"github.com/ValentinKolb/hwbridge/cmd/serve"
	"github.com/ValentinKolb/hwbridge/cmd/util"
	"github.com/spf13/cobra"
	"os"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "hwbridge",
		Short: "bridge between websocket clients and microcontroller boards",
		Long: fmt.Sprintf(`hwbridge (v%s)

A bridge that lets clients drive hardware components (LEDs, servos, motors,
sensors, ...) attached to microcontroller boards by sending JSON requests.
Boards are connected on first use and component instances are reused.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of hwbridge",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("hwbridge v%s\n", Version)
		},
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(call.CallCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "transport"
	RootCmd.PersistentFlags().String(key, "ws", util.WrapString("transport to use (ws, tcp, unix)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
