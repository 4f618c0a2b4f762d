// Command apexctl evaluates compliance snapshots from the command line.
package main

import (
	"os"

	"github.com/digirix/Apexsaas-sub009/internal/interfaces/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
