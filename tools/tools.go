package tools

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/liveeadmin/shai/config"
	"github.com/liveeadmin/shai/tools/mcp"
)

// Tool defines the interface for any action the agent can take.
type Tool interface {
	Name() string
	Description() string
	// Schema returns the JSON schema of the tool's arguments as a plain map,
	// shaped {"type": "object", "properties": {...}, "required": [...]}.
	Schema() map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}) (string, error)
}

// ToolRegistry holds all available tools.
type ToolRegistry struct {
	tools      map[string]Tool
	mcpClients map[string]*mcp.MCPClient
}

func NewToolRegistry(ctx context.Context, cfg *config.Config) (*ToolRegistry, error) {
	r := &ToolRegistry{
		tools:      make(map[string]Tool),
		mcpClients: make(map[string]*mcp.MCPClient),
	}

	// Register default tools
	r.Register(&ReadFileTool{fsAccess: &cfg.FilesystemAccess})
	r.Register(&WriteFileTool{fsAccess: &cfg.FilesystemAccess})
	r.Register(&ExecuteCommandTool{allowedCommands: cfg.AllowedCommands})

	for _, mcpServer := range cfg.AdditionalMCPServers {
		client, err := mcp.NewMCPClient(ctx, mcpServer)
		if err != nil {
			r.Close()
			return nil, err
		}
		r.mcpClients[mcpServer.Name] = client
	}

	return r, nil
}

func (r *ToolRegistry) Register(t Tool) {
	r.tools[t.Name()] = t
}

func (r *ToolRegistry) GetTool(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// GetActiveTools returns the tool instances for a given toolset. MCP tools are
// named "<server>:<tool>"; "<server>:*" selects every tool the server exposes.
func (r *ToolRegistry) GetActiveTools(ts *config.Toolset) ([]Tool, error) {
	var activeTools []Tool
	for _, toolName := range ts.Tools {
		if server, tool, ok := strings.Cut(toolName, ":"); ok {
			client, found := r.mcpClients[server]
			if !found {
				return nil, fmt.Errorf("toolset '%s' references unknown MCP server '%s'", ts.Name, server)
			}
			if tool == "*" {
				for _, mt := range client.Tools() {
					activeTools = append(activeTools, mt)
				}
				continue
			}
			mcpTool, found := client.GetTool(tool)
			if !found {
				return nil, fmt.Errorf("MCP server '%s' does not expose tool '%s'", server, tool)
			}
			activeTools = append(activeTools, mcpTool)
			continue
		}

		if t, ok := r.GetTool(toolName); ok {
			activeTools = append(activeTools, t)
		} else {
			return nil, fmt.Errorf("tool '%s' from toolset '%s' is not registered", toolName, ts.Name)
		}
	}
	return activeTools, nil
}

// Close stops all MCP server connections.
func (r *ToolRegistry) Close() {
	for _, client := range r.mcpClients {
		client.Stop()
	}
}

// isPathRestricted checks if a path matches any of the glob patterns.
func isPathRestricted(path string, patterns []string) (bool, error) {
	for _, pattern := range patterns {
		match, err := doublestar.PathMatch(pattern, path)
		if err != nil {
			return false, fmt.Errorf("invalid glob pattern '%s': %w", pattern, err)
		}
		if match {
			return true, nil
		}
	}
	return false, nil
}

// isCommandAllowed checks if a command is in the allowlist (with regex support).
func isCommandAllowed(command string, allowed []string) (bool, error) {
	cmdParts := strings.Fields(command)
	if len(cmdParts) == 0 {
		return false, nil
	}

	for _, pattern := range allowed {
		re, err := regexp.Compile(pattern)
		if err != nil {
			fmt.Printf("Warning: Invalid regex in allowed_commands '%s': %v\n", pattern, err)
			// Fallback to simple string comparison if regex is invalid
			if command == pattern {
				return true, nil
			}
			continue
		}
		if re.MatchString(command) {
			return true, nil
		}
	}
	return false, nil
}
