package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"strings"

	"github.com/go-training/clickup-mcp/pkg/logger"

	"github.com/gptscript-ai/cmd"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cobra"
)

var version = "dev"

// ErrNoSession is returned when no session id was given; the sign-in page is opened instead.
var ErrNoSession = errors.New("no session id: sign in and set MCP_SESSION_ID")

// ClientCmd calls a tool on a running server.
type ClientCmd struct {
	Server    string `name:"server" env:"MCP_SERVER_URL" usage:"Base URL of the clickup-mcp server" default:"http://localhost:8095"`
	SessionID string `name:"session-id" env:"MCP_SESSION_ID" usage:"Session id shown after signing in"`
	Tool      string `name:"tool" usage:"Tool to call" default:"show_session"`
	Args      string `name:"args" usage:"Tool arguments as a JSON object"`
	List      bool   `name:"list" usage:"Only list the available tools"`
	LogLevel  string `name:"log-level" env:"LOG_LEVEL" usage:"Log level (DEBUG, INFO, WARN, ERROR)"`
}

func (c *ClientCmd) Run(cobraCmd *cobra.Command, args []string) error {
	logger.NewWithLevel(c.LogLevel)
	base := strings.TrimRight(c.Server, "/")

	if c.SessionID == "" {
		openBrowser(base + "/authorize")
		return ErrNoSession
	}

	arguments, err := parseArgs(c.Args)
	if err != nil {
		return err
	}

	ctx := cobraCmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	mcpClient, info, err := connect(ctx, base+"/mcp", c.SessionID)
	if err != nil {
		return err
	}
	defer mcpClient.Close()

	slog.Info("Client initialized successfully!",
		"server", info.ServerInfo.Name,
		"version", info.ServerInfo.Version)

	if c.List {
		tools, err := mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
		if err != nil {
			return fmt.Errorf("failed to list tools: %w", err)
		}
		for _, tool := range tools.Tools {
			slog.Info("Available Tool", "name", tool.Name, "description", tool.Description)
		}
		return nil
	}

	result, err := callTool(ctx, mcpClient, c.Tool, arguments)
	if err != nil {
		return err
	}
	printToolResult(result)
	if result.IsError {
		return fmt.Errorf("tool %s returned an error", c.Tool)
	}
	return nil
}

// connect opens a streamable HTTP session authenticated with sessionID.
func connect(ctx context.Context, endpoint, sessionID string) (*client.Client, *mcp.InitializeResult, error) {
	c, err := client.NewStreamableHttpClient(endpoint,
		transport.WithHTTPHeaders(map[string]string{
			"Authorization": "Bearer " + sessionID,
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create client: %w", err)
	}

	if err := c.Start(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to start client: %w", err)
	}

	result, err := c.Initialize(ctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo: mcp.Implementation{
				Name:    "clickup-mcp-client",
				Version: version,
			},
		},
	})
	if err != nil {
		_ = c.Close()
		return nil, nil, fmt.Errorf("failed to initialize client: %w", err)
	}
	return c, result, nil
}

func callTool(ctx context.Context, c *client.Client, name string, args map[string]any) (*mcp.CallToolResult, error) {
	slog.Info("Calling tool", "name", name)
	result, err := c.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call tool %s: %w", name, err)
	}
	return result, nil
}

func parseArgs(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("--args must be a JSON object: %w", err)
	}
	return args, nil
}

func printToolResult(result *mcp.CallToolResult) {
	for _, content := range result.Content {
		if textContent, ok := content.(mcp.TextContent); ok {
			fmt.Println(textContent.Text)
		} else {
			jsonBytes, _ := json.MarshalIndent(content, "", "  ")
			fmt.Println(string(jsonBytes))
		}
	}
}

// openBrowser opens the default browser to the specified URL
func openBrowser(url string) {
	var err error

	switch runtime.GOOS {
	case "linux":
		err = exec.Command("xdg-open", url).Start()
	case "windows":
		err = exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	case "darwin":
		err = exec.Command("open", url).Start()
	default:
		err = errors.New("unsupported platform")
	}

	if err != nil {
		slog.Error("Failed to open browser", "err", err)
	}
	slog.Info("Sign in, then rerun with the session id", "url", url)
}

// Customize sets the command metadata shown in help output.
func (c *ClientCmd) Customize(cobraCmd *cobra.Command) {
	cobraCmd.Use = "clickup-mcp-client"
	cobraCmd.Short = "Call a tool on a clickup-mcp server"
	cobraCmd.Long = `clickup-mcp-client connects to a clickup-mcp server over streamable HTTP.

Without a session id it opens the server's sign-in page in the browser.

Examples:
  clickup-mcp-client --list --session-id=<id>
  clickup-mcp-client --tool=get_tasks --args='{"list_id":"901"}'`
	cobraCmd.Version = version
	cobraCmd.SilenceUsage = true
}

// Execute is the main entry point for the CLI
func Execute() error {
	return cmd.Command(&ClientCmd{}).Execute()
}
