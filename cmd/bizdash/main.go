// Command bizdash serves the business dashboard and manages its users.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = os.Stderr.WriteString("Error: " + err.Error() + "\n")
		os.Exit(1)
	}
}
