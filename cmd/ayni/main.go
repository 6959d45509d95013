// Command ayni runs the reciprocity economy: scoring, ledger and revenue
// distribution, over HTTP or from the command line.
package main

import (
	"os"

	"github.com/coomunity/ayni/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
