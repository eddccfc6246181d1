// Command qipu is the CLI boundary described in spec §6: it dispatches
// verbs onto the internal/* packages, resolves --format/--store/--root,
// and maps returned errors onto exit codes 0/1/2. Verb dispatch, editor
// invocation, and terminal rendering are explicitly outside the core's
// scope; everything here is a thin shell around internal/*.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "qipu:", err)
		os.Exit(exitCode(err))
	}
}
