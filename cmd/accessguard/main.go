// Command accessguard scores access-graph entities for anomalous behavior.
package main

import (
	"fmt"
	"os"

	"github.com/hed1ad/accessguard/pkg/errorutil"
)

func main() {
	if err := newRootCommand(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}

// exitCode separates input and configuration failures from runtime ones.
func exitCode(err error) int {
	if errorutil.KindOf(err) != 0 {
		return 2
	}
	return 1
}
