// Command winebuild builds Wine trees with the fixups their version needs.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/goplus/winebuild/cmd/winebuild/internal"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := internal.Execute(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "winebuild:", err)
		os.Exit(internal.GetExitCode(err))
	}
}
