// Command medledger manages tamper-evident medical records anchored to a ledger.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/medledger/internal/cli"

	// Registers the "devnet" ledger driver.
	_ "github.com/roach88/medledger/internal/ledger/devnet"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
