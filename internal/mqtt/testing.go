// testing.go provides staged MQTT connectivity checks.
package mqtt

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/vitalcam/vitalcam/internal/errors"
	"github.com/vitalcam/vitalcam/internal/logger"
)

// TestResult represents the result of one connectivity stage.
type TestResult struct {
	Success   bool   `json:"success"`
	Stage     string `json:"stage"`
	Message   string `json:"message"`
	Error     string `json:"error,omitempty"`
	Timestamp string `json:"timestamp,omitempty"` // RFC 3339
}

// TestStage represents a stage in the MQTT test process
type TestStage int

const (
	DNSResolution TestStage = iota
	TCPConnection
	MQTTConnection
	MessagePublish
)

// String returns the string representation of a test stage
func (s TestStage) String() string {
	switch s {
	case DNSResolution:
		return "DNS Resolution"
	case TCPConnection:
		return "TCP Connection"
	case MQTTConnection:
		return "MQTT Connection"
	case MessagePublish:
		return "Message Publishing"
	default:
		return "Unknown Stage"
	}
}

// Timeout constants for the test stages
const (
	dnsTimeout  = 5 * time.Second
	tcpTimeout  = 5 * time.Second
	mqttTimeout = 10 * time.Second
	pubTimeout  = 5 * time.Second
)

// runStage executes check with a stage timeout and converts the outcome.
func runStage(ctx context.Context, stage TestStage, timeout time.Duration, check func(context.Context) error) TestResult {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result := TestResult{Stage: stage.String(), Timestamp: time.Now().Format(time.RFC3339)}
	if err := check(ctx); err != nil {
		result.Error = err.Error()
		result.Message = fmt.Sprintf("Failed to perform %s", stage)
		return result
	}
	result.Success = true
	result.Message = fmt.Sprintf("Successfully completed %s", stage)
	return result
}

// TestConnection resolves the broker, dials it, connects and publishes a test
// message, stopping at the first failed stage. The channel is closed when done.
func (c *client) TestConnection(ctx context.Context, resultChan chan<- TestResult) {
	defer close(resultChan)

	send := func(r TestResult) bool {
		level := c.log.Info
		if !r.Success {
			level = c.log.Warn
		}
		level("mqtt connection test", logger.String("stage", r.Stage), logger.Bool("success", r.Success), logger.String("error", r.Error))
		select {
		case <-ctx.Done():
			return false
		case resultChan <- r:
			return r.Success
		}
	}

	host, hostPort, err := brokerAddress(c.config.Broker)
	if err != nil {
		send(TestResult{Stage: DNSResolution.String(), Message: "Invalid broker URL", Error: err.Error()})
		return
	}

	if net.ParseIP(host) == nil {
		if !send(runStage(ctx, DNSResolution, dnsTimeout, func(ctx context.Context) error {
			_, err := net.DefaultResolver.LookupHost(ctx, host)
			return err
		})) {
			return
		}
	}

	if !send(runStage(ctx, TCPConnection, tcpTimeout, func(ctx context.Context) error {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", hostPort)
		if err != nil {
			return err
		}
		return conn.Close()
	})) {
		return
	}

	if !send(runStage(ctx, MQTTConnection, mqttTimeout, func(ctx context.Context) error {
		if c.IsConnected() {
			return nil
		}
		return c.Connect(ctx)
	})) {
		return
	}

	send(runStage(ctx, MessagePublish, pubTimeout, func(ctx context.Context) error {
		payload := fmt.Sprintf(`{"type":"test","timestamp":%q,"device_id":%q}`,
			formatTimestamp(time.Now()), c.config.ClientID)
		return c.PublishWithRetain(ctx, c.config.TopicPrefix+"/test", payload, false)
	}))
}

// brokerAddress returns the host and a dialable host:port, defaulting the port to 1883.
func brokerAddress(broker string) (host, hostPort string, err error) {
	u, err := url.Parse(broker)
	if err != nil {
		return "", "", err
	}
	host = u.Hostname()
	if host == "" {
		return "", "", errors.Newf("broker %q has no host", broker).
			Component("mqtt").
			Category(errors.CategoryConfiguration).
			Build()
	}
	port := u.Port()
	if port == "" {
		port = "1883"
	}
	return host, net.JoinHostPort(host, port), nil
}
