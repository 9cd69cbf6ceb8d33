// Command progression manages the points economy of a community site.
package main

import (
	"fmt"
	"os"

	"github.com/commonground/progression/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
