// Command pagefeed appends entities to a paginated feed and runs the
// assign step that publishes them as pages.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/roach88/pagefeed/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
