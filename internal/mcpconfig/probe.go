package mcpconfig

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// clientImplementation identifies this bridge to MCP servers it connects
// to, matching the teacher's mcp.NewClient(&mcp.Implementation{...}, nil)
// call shape in pkg/connector/mcp_client.go.
var clientImplementation = &mcp.Implementation{
	Name:    "megobari",
	Version: "1.0.0",
}

// Probe opens and immediately closes a session against name's server,
// confirming it's actually reachable rather than just present in
// mcp.json. Used by /mcp to mark each listed server as live. Grounded on
// pkg/connector/mcp_client.go's newMCPSession, trimmed to this bridge's
// two transports (no Nexus/Clay bearer-auth HTTP client).
func Probe(ctx context.Context, name string, cfg ServerConfig) error {
	client := mcp.NewClient(clientImplementation, nil)

	var (
		session *mcp.ClientSession
		err     error
	)
	switch cfg.Transport() {
	case TransportStdio:
		if cfg.Command == "" {
			return fmt.Errorf("mcp server %q has no command", name)
		}
		cmd := exec.CommandContext(ctx, cfg.Command, cfg.Args...)
		session, err = client.Connect(ctx, &mcp.CommandTransport{Command: cmd}, nil)
	case TransportStreamableHTTP:
		if cfg.URL == "" {
			return fmt.Errorf("mcp server %q has no url", name)
		}
		session, err = client.Connect(ctx, &mcp.StreamableClientTransport{Endpoint: cfg.URL}, nil)
	default:
		return fmt.Errorf("mcp server %q has unsupported transport", name)
	}
	if err != nil {
		return fmt.Errorf("connect mcp server %q: %w", name, err)
	}
	defer session.Close()
	return nil
}
