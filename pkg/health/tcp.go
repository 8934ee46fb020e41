package health

import (
	"context"
	"net"
	"time"
)

// TCPChecker reports whether the bus endpoint accepts connections. It only
// dials; the NATS client keeps its own reconnect state.
type TCPChecker struct {
	Address string
	Timeout time.Duration
}

func NewTCPChecker(address string) *TCPChecker {
	return &TCPChecker{Address: address, Timeout: DefaultConfig().Timeout}
}

func (t *TCPChecker) Check(ctx context.Context) Result {
	start := time.Now()

	conn, err := (&net.Dialer{Timeout: t.Timeout}).DialContext(ctx, "tcp", t.Address)
	if err != nil {
		return result(start, false, "%s refused: %v", t.Address, err)
	}
	_ = conn.Close()

	return result(start, true, "%s accepting connections", t.Address)
}

func (t *TCPChecker) Type() CheckType {
	return CheckTypeTCP
}
