// slang-fakeserver is the stand-in SystemVerilog language server used to
// exercise the harness without a slang build. It speaks LSP over stdio.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/svlang/slang-harness/internal/fakeserver"
)

func main() {
	if err := fakeserver.NewServer().Run(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
