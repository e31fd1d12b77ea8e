package transport

import (
	"fmt"

	"github.com/orchestra-mcp/chatsocket/config"
	"github.com/orchestra-mcp/chatsocket/src/types"
)

// NewDialer returns the dialer for the configured transport backend.
func NewDialer(cfg *config.RealtimeConfig) (types.Dialer, error) {
	switch cfg.Transport {
	case config.TransportFastHTTP, "":
		return &FastHTTPDialer{HandshakeTimeout: cfg.HandshakeTimeout()}, nil
	case config.TransportNhooyr:
		return &NhooyrDialer{}, nil
	}
	return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
}
