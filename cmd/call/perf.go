package call

import (
	"context"
	"encoding/csv"
	"fmt"
	"github.com/ValentinKolb/hwbridge/cmd/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"log"
	"math"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for hwbridge servers",
		Long:    "Runs parallel connect and rpc requests against a bridge. The rpc tests call a component on a single board, so every call after the first reuses the cached board and component.",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfBoard         = "perf"
	perfClass         = "Led"
	perfComponentArgs = []any{13}
	perfFunction      = "isOn"
	perfNumThreads    = 10
	perfSkip          = make([]string, 0)
)

func init() {
	// add flags
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. connect,rpc)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "board"
	perfTestCmd.Flags().String(key, perfBoard, util.WrapString("Board id used for all requests"))
	key = "class"
	perfTestCmd.Flags().String(key, perfClass, util.WrapString("Component class used for the rpc tests"))
	key = "component-args"
	perfTestCmd.Flags().String(key, "[13]", util.WrapString("Constructor arguments of the component as json array"))
	key = "function"
	perfTestCmd.Flags().String(key, perfFunction, util.WrapString("Function called in the rpc tests"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfNumThreads = viper.GetInt("threads")
	perfBoard = viper.GetString("board")
	perfClass = viper.GetString("class")
	perfFunction = viper.GetString("function")
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	args, err := parseArgs("component-args")
	if err != nil {
		return err
	}
	perfComponentArgs = args

	return nil
}

func runPerf(cmd *cobra.Command, _ []string) error {

	fmt.Println("Performance testing tool for hwbridge servers")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	config := util.GetClientConfig()
	fmt.Println(config.String())
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Printf("Target: board %s, %s%v.%s()\n", perfBoard, perfClass, perfComponentArgs, perfFunction)
	fmt.Println()

	// warm up: the first request pays for the board handshake
	util.Step("connecting board %s", perfBoard)
	if err := bridge.Connect(cmd.Context(), perfBoard); err != nil {
		return report(err)
	}

	fmt.Println("starting tests...")

	// Create results map
	results := make(map[string]testing.BenchmarkResult)

	connectResult := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("connect") {
			return
		}

		b.SetParallelism(perfNumThreads)

		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			for pb.Next() {
				if err := bridge.Connect(context.Background(), perfBoard); err != nil {
					log.Printf("(connect) - error connecting board: %v\n", err)
				}
			}
		})
	})

	results["connect"] = connectResult
	printResult("connect", connectResult)

	rpcResult := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("rpc") {
			return
		}

		b.SetParallelism(perfNumThreads)

		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			for pb.Next() {
				_, err := bridge.Call(context.Background(), perfBoard, perfClass, perfComponentArgs, perfFunction, nil)
				if err != nil {
					log.Printf("(rpc) - error calling %s: %v\n", perfFunction, err)
				}
			}
		})
	})

	results["rpc"] = rpcResult
	printResult("rpc", rpcResult)

	unknownResult := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("rpc-error") {
			return
		}

		b.SetParallelism(perfNumThreads)

		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			for pb.Next() {
				// error responses are expected here
				_, _ = bridge.Call(context.Background(), perfBoard, perfClass, perfComponentArgs, "__unknown", nil)
			}
		})
	})

	results["rpc-error"] = unknownResult
	printResult("rpc-error", unknownResult)

	// Write results to csv is specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	// Check if the test is in the skip list
	for _, skip := range perfSkip {
		if test == skip {
			return true
		}
	}
	return false
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result testing.BenchmarkResult) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	// Print the formatted result
	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\n", test, nsPerOp, time.Duration(nsPerOp), opsPerSec)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]testing.BenchmarkResult) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	config := util.GetClientConfig()

	// Write header
	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "Skipped",
		"Endpoint", "Transport", "TimeoutSec", "Threads", "Board", "Class", "Function",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	// Write test results
	for test, result := range results {
		var nsPerOp float64
		var opsPerSec float64
		var skipped string

		if result.NsPerOp() == 0 {
			skipped = "true"
		} else {
			skipped = "false"
			nsPerOp = math.Max(float64(result.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			skipped,
			config.Endpoint,
			config.Transport,
			strconv.FormatInt(config.TimeoutSecond, 10),
			strconv.Itoa(perfNumThreads),
			perfBoard,
			perfClass,
			perfFunction,
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	writer.Flush()
	return writer.Error()
}
