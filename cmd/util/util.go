package util

import (
	"github.com/ValentinKolb/hwbridge/rpc/client"
	"github.com/ValentinKolb/hwbridge/rpc/common"
	"github.com/ValentinKolb/hwbridge/rpc/serializer"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"strings"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		// Add the word
		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	// Add any remaining text
	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupRPCClientFlags adds common RPC connection flags to a command
func SetupRPCClientFlags(cmd *cobra.Command) {
	key := "timeout"
	cmd.PersistentFlags().Int64(key, 10, WrapString("The timeout in seconds of a single request"))

	key = "endpoint"
	cmd.PersistentFlags().String(key, "localhost:3074", WrapString("The address of the bridge (e.g. localhost:3074, ws://localhost:3074/, /tmp/hwbridge.sock)"))
}

// InitConfig loads the env files and makes viper read HWBRIDGE_<FLAG> variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("hwbridge")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// GetClientConfig reads client configuration from viper
func GetClientConfig() common.ClientConfig {
	return common.ClientConfig{
		Transport:     viper.GetString("transport"),
		Endpoint:      viper.GetString("endpoint"),
		TimeoutSecond: viper.GetInt64("timeout"),
	}
}

// NewClient connects a client using the configuration from viper
func NewClient() (*client.Client, error) {
	config := GetClientConfig()
	t, err := client.NewTransport(config.Transport)
	if err != nil {
		return nil, err
	}
	return client.NewClient(config, t, serializer.NewJSONSerializer())
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}
