// Command stationd is the CLI entry point for the station supervisor,
// grounded on the teacher's cmd/start.go / cmd/status.go / cmd/validate.go
// (a cobra root plus run/validate/health subcommands). Its own business
// logic is out of scope per spec.md §1 — this is the thin wiring shell
// the teacher always provides.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
