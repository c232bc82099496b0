// Package main provides the entry point for the amanctx CLI.
package main

import (
	"fmt"
	"os"

	"github.com/Aman-CERP/amanctx/cmd/amanctx/cmd"
	amerrors "github.com/Aman-CERP/amanctx/internal/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprint(os.Stderr, amerrors.FormatForCLI(err))
		os.Exit(1)
	}
}
