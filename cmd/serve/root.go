package serve

import (
	"context"
	"fmt"
	cmdUtil "github.com/ValentinKolb/hwbridge/cmd/util"
	"github.com/ValentinKolb/hwbridge/lib/hardware/sim"
	"github.com/ValentinKolb/hwbridge/rpc/common"
	"github.com/ValentinKolb/hwbridge/rpc/serializer"
	"github.com/ValentinKolb/hwbridge/rpc/server"
	"github.com/ValentinKolb/hwbridge/rpc/transport"
	"github.com/ValentinKolb/hwbridge/rpc/transport/tcp"
	"github.com/ValentinKolb/hwbridge/rpc/transport/unix"
	"github.com/ValentinKolb/hwbridge/rpc/transport/ws"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
)

var (
	serveCmdConfig = common.DefaultServerConfig()
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start the hardware bridge",
		Long:    `Start the hardware bridge with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is HWBRIDGE_<flag> (e.g. HWBRIDGE_REQUEST_TIMEOUT=15)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	defaults := common.DefaultServerConfig()

	// add flags
	key := "endpoint"
	ServeCmd.PersistentFlags().String(key, defaults.Endpoint, cmdUtil.WrapString("The address on which the bridge will listen (e.g. localhost:3074, 0.0.0.0:3074, /tmp/hwbridge.sock)"))

	key = "path"
	ServeCmd.PersistentFlags().String(key, defaults.Path, cmdUtil.WrapString("(ws transport) The http path of the websocket endpoint"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, defaults.TimeoutSecond, cmdUtil.WrapString("Write timeout in seconds for a single response"))

	key = "keepalive"
	ServeCmd.PersistentFlags().Int64(key, defaults.KeepAliveSecond, cmdUtil.WrapString("(ws transport) Interval in seconds between pings to idle clients. 0 disables pings"))

	key = "request-timeout"
	ServeCmd.PersistentFlags().Int64(key, defaults.RequestTimeoutSecond, cmdUtil.WrapString("Maximum time in seconds a request may take, including the board handshake. 0 waits forever"))

	key = "connect-timeout"
	ServeCmd.PersistentFlags().Int64(key, defaults.ConnectTimeoutSecond, cmdUtil.WrapString("Maximum time in seconds a board handshake may take before it fails. 0 waits forever"))

	key = "delivery"
	ServeCmd.PersistentFlags().String(key, string(defaults.Delivery), cmdUtil.WrapString("Who receives a response: broadcast (every connected client) or origin (only the requesting client)"))

	key = "components"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Comma-separated list of component classes clients may construct (e.g. Led,Servo). Empty allows every class"))

	key = "metrics-endpoint"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Address for GET /metrics and GET /healthz (e.g. localhost:9090). Empty disables metrics"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, defaults.LogLevel, cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))

	key = "sim-handshake"
	ServeCmd.PersistentFlags().Int64(key, defaults.Sim.HandshakeMillisecond, cmdUtil.WrapString("(simulator) Time in milliseconds a simulated board takes to become ready"))

	key = "sim-fail-boards"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("(simulator) Comma-separated list of board ids whose handshake fails"))

	key = "sim-pins"
	ServeCmd.PersistentFlags().Int(key, defaults.Sim.Pins, cmdUtil.WrapString("(simulator) Number of pins of every simulated board"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// read the configuration from the command line flags and environment variables
	serveCmdConfig.Transport = viper.GetString("transport")
	serveCmdConfig.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.Path = viper.GetString("path")
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.KeepAliveSecond = viper.GetInt64("keepalive")
	serveCmdConfig.RequestTimeoutSecond = viper.GetInt64("request-timeout")
	serveCmdConfig.ConnectTimeoutSecond = viper.GetInt64("connect-timeout")
	serveCmdConfig.Delivery = common.DeliveryMode(viper.GetString("delivery"))
	serveCmdConfig.Components = splitList(viper.GetString("components"))
	serveCmdConfig.MetricsEndpoint = viper.GetString("metrics-endpoint")
	serveCmdConfig.LogLevel = viper.GetString("log-level")
	serveCmdConfig.Sim = common.SimConfig{
		HandshakeMillisecond: viper.GetInt64("sim-handshake"),
		FailBoards:           splitList(viper.GetString("sim-fail-boards")),
		Pins:                 viper.GetInt("sim-pins"),
	}

	return serveCmdConfig.Validate()
}

// run starts the bridge and blocks until SIGINT or SIGTERM
func run(_ *cobra.Command, _ []string) error {

	// Parse the transport
	var t transport.IRPCServerTransport
	switch serveCmdConfig.Transport {
	case "ws":
		t = ws.NewWSServerTransport()
	case "tcp":
		t = tcp.NewTCPServerTransport()
	case "unix":
		t = unix.NewUnixServerTransport()
	default:
		return fmt.Errorf("invalid transport %s", serveCmdConfig.Transport)
	}

	driver := sim.NewDriver(sim.Config{
		HandshakeDelay: time.Duration(serveCmdConfig.Sim.HandshakeMillisecond) * time.Millisecond,
		FailBoards:     serveCmdConfig.Sim.FailBoards,
		Pins:           serveCmdConfig.Sim.Pins,
	})

	serv, err := server.NewRPCServer(
		serveCmdConfig,
		t,
		serializer.NewJSONSerializer(),
		driver,
		sim.NewCatalog(),
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serv.Run(ctx)
}

// splitList splits a comma-separated flag value, dropping empty entries
func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
