package main

import (
	"context"
	"fmt"
	"os"

	"buildgraph/internal/clicmd"
)

func main() {
	root := clicmd.NewRootCommand()
	err := root.ExecuteContext(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(clicmd.ExitCode(err))
}
