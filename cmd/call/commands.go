package call

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/ValentinKolb/hwbridge/cmd/util"
	"github.com/ValentinKolb/hwbridge/rpc/client"
	"github.com/ValentinKolb/hwbridge/rpc/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"os"
	"os/signal"
)

var (
	connectCmd = &cobra.Command{
		Use:   "connect [board]",
		Short: "Connect a board (e.g. /dev/ttyACM0)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			util.Step("connecting board %s", args[0])
			if err := bridge.Connect(cmd.Context(), args[0]); err != nil {
				return report(err)
			}
			util.Success("board %s connected", args[0])
			return nil
		},
	}

	rpcCmd = &cobra.Command{
		Use:   "rpc [board] [class] [function]",
		Short: "Call a function of a component (e.g. rpc /dev/ttyACM0 Led on --component-args '[13]')",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			componentArgs, err := parseArgs("component-args")
			if err != nil {
				return err
			}
			functionArgs, err := parseArgs("function-args")
			if err != nil {
				return err
			}

			req := common.NewRPCRequest(args[0], args[1], componentArgs, args[2], functionArgs)
			resp, err := bridge.Do(cmd.Context(), req)
			if err != nil {
				return report(err)
			}
			util.PrintResponse(resp)
			if !resp.Ok() {
				return fmt.Errorf("%s failed", args[2])
			}
			return nil
		},
	}

	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Print every response broadcast by the bridge until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			util.Step("watching responses (ctrl-c to stop)")
			for {
				select {
				case resp, ok := <-bridge.Events():
					if !ok {
						return client.ErrClosed
					}
					util.PrintResponse(resp)
				case <-ctx.Done():
					return nil
				}
			}
		},
	}
)

func init() {
	key := "component-args"
	rpcCmd.Flags().String(key, "[]", util.WrapString("Constructor arguments of the component as json array"))
	key = "function-args"
	rpcCmd.Flags().String(key, "[]", util.WrapString("Arguments of the function as json array"))
}

// parseArgs decodes the json array given in flag
func parseArgs(flag string) ([]any, error) {
	var args []any
	if err := json.Unmarshal([]byte(viper.GetString(flag)), &args); err != nil {
		return nil, fmt.Errorf("--%s must be a json array: %w", flag, err)
	}
	return args, nil
}

// report prints err and returns it for cobra
func report(err error) error {
	var respErr *client.ResponseError
	if errors.As(err, &respErr) {
		util.Failure("%s: %s", respErr.Name, respErr.Message)
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		util.Failure("no response within %ds", util.GetClientConfig().TimeoutSecond)
		return err
	}
	util.Failure("%v", err)
	return err
}
