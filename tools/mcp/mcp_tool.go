package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"sort"

	"github.com/liveeadmin/shai/config"
	"github.com/liveeadmin/shai/errors"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// MCPClient manages the connection to a single MCP server, either a local
// subprocess speaking stdio or a remote server behind the streamable HTTP
// transport.
type MCPClient struct {
	Name  string
	cmd   *exec.Cmd
	conn  *mcpsdk.ClientSession
	tools map[string]*MCPTool
}

// bearerTransport injects an Authorization header for OAuth-gated servers.
type bearerTransport struct {
	token string
	base  http.RoundTripper
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+t.token)
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(clone)
}

// NewMCPClient connects to the MCP server described by srv and discovers the
// tools it provides.
func NewMCPClient(ctx context.Context, srv config.MCPServer) (*MCPClient, error) {
	mcpClient := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "shai", Version: "v1.0.0"}, nil)

	var cmd *exec.Cmd
	var transport mcpsdk.Transport
	if srv.URL != "" {
		httpClient := http.DefaultClient
		if srv.BearerToken != "" {
			httpClient = &http.Client{Transport: &bearerTransport{token: srv.BearerToken}}
		}
		transport = mcpsdk.NewStreamableClientTransport(srv.URL, &mcpsdk.StreamableClientTransportOptions{
			HTTPClient: httpClient,
		})
	} else {
		cmd = exec.Command(srv.Command, srv.Args...)
		cmd.Stderr = os.Stderr
		transport = mcpsdk.NewCommandTransport(cmd)
	}

	conn, err := mcpClient.Connect(ctx, transport)
	if err != nil {
		if cmd != nil && cmd.Process != nil {
			cmd.Process.Kill()
		}
		return nil, errors.Wrapf(err, "failed to connect to MCP server '%s'", srv.Name)
	}

	client := &MCPClient{
		Name:  srv.Name,
		cmd:   cmd,
		conn:  conn,
		tools: make(map[string]*MCPTool),
	}

	toolListParams := &mcpsdk.ListToolsParams{}
	for {
		toolList, err := conn.ListTools(ctx, toolListParams)
		if err != nil {
			client.Stop()
			return nil, errors.Wrapf(err, "failed to list tools from MCP server '%s'", srv.Name)
		}

		for _, t := range toolList.Tools {
			client.tools[t.Name] = &MCPTool{
				serverName:  srv.Name,
				toolName:    t.Name,
				description: t.Description,
				schema:      schemaToMap(t.InputSchema),
				client:      client,
			}
		}

		if toolList.NextCursor == "" {
			break
		}
		toolListParams.Cursor = toolList.NextCursor
	}

	return client, nil
}

// schemaToMap converts the SDK's schema type into the plain map the provider
// adapters expect.
func schemaToMap(schema interface{}) map[string]interface{} {
	fallback := map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
	if schema == nil {
		return fallback
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return fallback
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil || m == nil {
		return fallback
	}
	return m
}

// GetTool returns a specific tool provided by this MCP server by its short name.
func (c *MCPClient) GetTool(toolName string) (*MCPTool, bool) {
	tool, ok := c.tools[toolName]
	return tool, ok
}

// Tools returns every tool the server exposes, sorted by name.
func (c *MCPClient) Tools() []*MCPTool {
	names := make([]string, 0, len(c.tools))
	for name := range c.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]*MCPTool, 0, len(names))
	for _, name := range names {
		out = append(out, c.tools[name])
	}
	return out
}

// Stop terminates the MCP server connection and any subprocess.
func (c *MCPClient) Stop() error {
	if c.conn != nil {
		c.conn.Close()
	}
	if c.cmd != nil && c.cmd.Process != nil {
		fmt.Fprintf(os.Stderr, "INFO: Terminating MCP server '%s'\n", c.Name)
		return c.cmd.Process.Kill()
	}
	return nil
}

// MCPTool represents a tool available from an external MCP server.
// It satisfies the `tools.Tool` interface from the parent package.
type MCPTool struct {
	serverName  string
	toolName    string
	description string
	schema      map[string]interface{}
	client      *MCPClient
}

// Name returns the tool's short name as the server declared it.
// Qualified "<server>:<tool>" names are resolved by the registry, not here;
// some providers reject punctuation in function names.
func (t *MCPTool) Name() string {
	return t.toolName
}

// Description returns the tool's description, provided by the MCP server.
func (t *MCPTool) Description() string {
	return t.description
}

// Schema returns the argument schema the MCP server declared for this tool.
func (t *MCPTool) Schema() map[string]interface{} {
	return t.schema
}

// Execute sends the call to the MCP server and returns the concatenated text
// content of the result.
func (t *MCPTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	result, err := t.client.conn.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      t.toolName,
		Arguments: args,
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to call tool '%s'", t.Name())
	}
	op := ""
	for _, c := range result.Content {
		if text, ok := c.(*mcpsdk.TextContent); ok {
			op += text.Text
		}
	}
	if result.IsError {
		return "", errors.New("tool '%s' reported an error: %s", t.Name(), op)
	}
	return op, nil
}
