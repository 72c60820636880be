// shieldctl - offline Safe Shield analysis and address book management
package main

import (
	"fmt"
	"os"

	"github.com/mbd888/safeshield/internal/cli"
)

var version = "dev"

func main() {
	if err := cli.Execute(version); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
