// Command clickup-mcp-client calls one tool on a clickup-mcp server using a
// session id obtained from the server's sign-in page.
package main

import (
	"os"
)

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
