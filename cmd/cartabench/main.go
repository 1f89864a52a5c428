// Command cartabench stresses a carta map from many goroutines and reports bucket
// distribution for the available hash providers.
package main

import (
	"fmt"
	"os"
)

func main() {
	app := App()
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
