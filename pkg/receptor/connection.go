package receptor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cuemby/satellite-operations/pkg/correlator"
	"github.com/cuemby/satellite-operations/pkg/types"
)

// HealthCheckDirective asks a satellite node to report on its instance
const HealthCheckDirective = "receptor_satellite:health_check"

// Connection binds a Client to one tenant account
type Connection struct {
	account string
	client  *Client
}

// NewConnection returns a connection for account
func NewConnection(account string, client *Client) *Connection {
	return &Connection{account: account, client: client}
}

// Account returns the bound account
func (c *Connection) Account() string {
	return c.account
}

// Status returns the connection state of nodeID
func (c *Connection) Status(ctx context.Context, nodeID string) (types.NodeStatus, error) {
	return c.client.Status(ctx, c.account, nodeID)
}

// SendAvailabilityCheck sends the health check directive for the satellite
// instance sourceRef and returns the message ID cb is registered under
func (c *Connection) SendAvailabilityCheck(ctx context.Context, sourceRef, nodeID string, cb correlator.Callback) (string, error) {
	// The controller forwards payload verbatim, so it travels as a JSON string
	payload, err := json.Marshal(map[string]string{"satellite_instance_id": sourceRef})
	if err != nil {
		return "", fmt.Errorf("failed to encode health check payload: %w", err)
	}

	return c.client.SendDirective(ctx, Directive{
		Account: c.account,
		NodeID:  nodeID,
		Name:    HealthCheckDirective,
		Payload: string(payload),
	}, cb)
}
