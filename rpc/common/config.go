package common

import (
	"errors"
	"fmt"
	"github.com/go-playground/validator/v10"
	"strings"
	"time"
)

// validate is the shared validator instance
var validate = validator.New()

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

// DeliveryMode decides which sessions receive a response
type DeliveryMode string

const (
	// DeliveryBroadcast sends every response to every connected session
	DeliveryBroadcast DeliveryMode = "broadcast"
	// DeliveryOrigin sends a response only to the session the request came from
	DeliveryOrigin DeliveryMode = "origin"
)

// SimConfig configures the simulated hardware driver
type SimConfig struct {
	// HandshakeMillisecond is the delay before a simulated board reports ready
	HandshakeMillisecond int64 `validate:"gte=0"`
	// FailBoards lists board ids whose handshake fails
	FailBoards []string
	// Pins is the number of pins per simulated board
	Pins int `validate:"gte=1,lte=1024"`
}

// ServerConfig holds all configuration parameters of the bridge server
type ServerConfig struct {
	// Transport and endpoint
	Transport string `validate:"required,oneof=ws tcp unix"`
	Endpoint  string `validate:"required"`
	Path      string `validate:"required,startswith=/"`

	// write timeout per frame
	TimeoutSecond int64 `validate:"gte=1"`
	// ws ping interval (0 disables keepalive)
	KeepAliveSecond int64 `validate:"gte=0"`

	// RequestTimeoutSecond bounds how long a request may wait for its board (0 = no limit)
	RequestTimeoutSecond int64 `validate:"gte=0"`
	// ConnectTimeoutSecond fails a board handshake that never completes (0 = no limit)
	ConnectTimeoutSecond int64 `validate:"gte=0"`

	Delivery DeliveryMode `validate:"required,oneof=broadcast origin"`

	// Components lists the permitted component classes (empty = all known classes)
	Components []string `validate:"dive,required"`

	// MetricsEndpoint serves /metrics and /healthz (empty = disabled)
	MetricsEndpoint string

	// Logging configuration
	LogLevel string `validate:"required,oneof=debug info warn warning error"`

	Sim SimConfig
}

// DefaultServerConfig returns the configuration used when nothing is overridden
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Transport:            "ws",
		Endpoint:             "localhost:3074",
		Path:                 "/",
		TimeoutSecond:        5,
		KeepAliveSecond:      30,
		RequestTimeoutSecond: 30,
		ConnectTimeoutSecond: 30,
		Delivery:             DeliveryBroadcast,
		LogLevel:             "info",
		Sim: SimConfig{
			HandshakeMillisecond: 250,
			Pins:                 20,
		},
	}
}

// Validate checks the struct tags and the rules that span several fields
func (c *ServerConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}
	if c.Transport == "unix" && !strings.HasPrefix(c.Endpoint, "/") && !strings.HasPrefix(c.Endpoint, ".") {
		return fmt.Errorf("unix transport requires a socket path as endpoint, got %q", c.Endpoint)
	}
	if c.MetricsEndpoint != "" && c.MetricsEndpoint == c.Endpoint {
		return errors.New("metrics endpoint must differ from the rpc endpoint")
	}
	return nil
}

// RequestTimeout returns RequestTimeoutSecond as a duration
func (c *ServerConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSecond) * time.Second
}

// ConnectTimeout returns ConnectTimeoutSecond as a duration
func (c *ServerConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutSecond) * time.Second
}

// WriteTimeout returns TimeoutSecond as a duration
func (c *ServerConfig) WriteTimeout() time.Duration {
	return time.Duration(c.TimeoutSecond) * time.Second
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	orNone := func(d int64, unit string) string {
		if d == 0 {
			return "none"
		}
		return fmt.Sprintf("%d %s", d, unit)
	}

	addSection("RPC Server")
	addField("Transport", c.Transport)
	addField("Endpoint", c.Endpoint)
	if c.Transport == "ws" {
		addField("Path", c.Path)
		addField("Keep Alive", orNone(c.KeepAliveSecond, "sec"))
	}
	addField("Write Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Delivery", string(c.Delivery))

	addSection("Boards")
	addField("Request Timeout", orNone(c.RequestTimeoutSecond, "sec"))
	addField("Connect Timeout", orNone(c.ConnectTimeoutSecond, "sec"))
	if len(c.Components) == 0 {
		addField("Components", "all")
	} else {
		addField("Components", strings.Join(c.Components, ", "))
	}

	addSection("Simulator")
	addField("Handshake", fmt.Sprintf("%d ms", c.Sim.HandshakeMillisecond))
	addField("Pins", fmt.Sprintf("%d", c.Sim.Pins))
	if len(c.Sim.FailBoards) > 0 {
		addField("Failing Boards", strings.Join(c.Sim.FailBoards, ", "))
	}

	addSection("Observability")
	addField("Log Level", c.LogLevel)
	if c.MetricsEndpoint == "" {
		addField("Metrics", "disabled")
	} else {
		addField("Metrics", c.MetricsEndpoint)
	}

	return sb.String()
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

type ClientConfig struct {
	Transport     string `validate:"required,oneof=ws tcp unix"`
	Endpoint      string `validate:"required"`
	TimeoutSecond int64  `validate:"gte=1"`
}

// Validate checks the client configuration
func (c *ClientConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}
	return nil
}

// Timeout returns TimeoutSecond as a duration
func (c *ClientConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecond) * time.Second
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	sb.WriteString("\nCLIENT CONFIGURATION\n")
	sb.WriteString(fmt.Sprintf("  %-22s: %s\n", "Transport", c.Transport))
	sb.WriteString(fmt.Sprintf("  %-22s: %s\n", "Endpoint", c.Endpoint))
	sb.WriteString(fmt.Sprintf("  %-22s: %d sec\n", "Timeout", c.TimeoutSecond))

	return sb.String()
}

// formatValidationError converts validator errors into readable messages
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
