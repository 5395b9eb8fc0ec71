package util

import (
	"encoding/json"
	"fmt"
	"github.com/ValentinKolb/hwbridge/rpc/common"
	"github.com/fatih/color"
	"os"
)

var (
	green = color.New(color.FgGreen)
	red   = color.New(color.FgRed, color.Bold)
	cyan  = color.New(color.FgCyan)
)

// Success prints a success message in green
func Success(format string, a ...any) {
	_, _ = green.Printf("✓ %s\n", fmt.Sprintf(format, a...))
}

// Failure prints an error message in red to stderr
func Failure(format string, a ...any) {
	_, _ = red.Fprintf(os.Stderr, "✗ %s\n", fmt.Sprintf(format, a...))
}

// Step prints a progress message in cyan
func Step(format string, a ...any) {
	_, _ = cyan.Printf("→ %s\n", fmt.Sprintf(format, a...))
}

// PrintJSON prints v as indented json
func PrintJSON(v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Printf("%v\n", v)
		return
	}
	fmt.Println(string(b))
}

// PrintResponse prints a bridge response, colored by its status
func PrintResponse(resp *common.Response) {
	if resp.Ok() {
		_, _ = green.Printf("%d ", resp.Status)
	} else {
		_, _ = red.Printf("%d ", resp.Status)
	}
	PrintJSON(resp)
}
