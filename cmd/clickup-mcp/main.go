// Command clickup-mcp serves ClickUp tools over MCP, authenticating users
// through ClickUp's OAuth2 authorization-code flow.
package main

import (
	"os"
)

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
