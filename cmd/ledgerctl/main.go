// Command ledgerctl runs operator tasks against the ledger: schema
// migrations, a single payout sweep, and manual payout dispatch.
package main

import (
	"fmt"
	"os"
)

var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
