// Command echoreactord hosts reactorcore's bundled echo.Handler behind a
// real TCP listener, wired to structured logging, Prometheus metrics, and
// a viper/cobra configuration surface. The reactor core itself knows
// nothing about any of this; everything here is injected from the
// outside.
package main

import (
	"context"
	"fmt"
	"os"
)

func main() {
	os.Exit(runMain())
}

func runMain() int {
	cmd := newRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		var ee exitError
		if asExitError(err, &ee) {
			fmt.Fprintln(os.Stderr, ee.err)
			return ee.code
		}
		fmt.Fprintln(os.Stderr, err)
		return exUsage
	}
	return exOK
}

func asExitError(err error, target *exitError) bool {
	if ee, ok := err.(exitError); ok {
		*target = ee
		return true
	}
	return false
}
