// Command linkguard-admin inspects and manages rate limit counters and session tokens.
package main

import (
	"github.com/turtacn/linkguard/cmd/cli"
)

func main() {
	cli.Execute()
}
