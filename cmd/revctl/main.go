// Command revctl creates, edits and inspects revisionable records.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/revkit/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	var exitErr *cli.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		// Errors already reported through the formatter carry an exit code.
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(cli.GetExitCode(err))
}
