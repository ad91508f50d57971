// Command blitsim drives the blit pipeline against the software
// accelerator.
//
//	blitsim run --png out.png
//	blitsim reduce
//	blitsim config
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
