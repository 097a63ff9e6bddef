// cmd/corscheck/main.go
package main

import (
	"os"

	"github.com/dalemusser/corsgate/internal/corscheck"
)

func main() {
	os.Exit(corscheck.Run("corscheck", os.Args[1:]))
}
