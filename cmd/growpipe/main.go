// Command growpipe serves growable byte pipes over HTTP, or pumps stdin
// through a single pipe to stdout.
package main

import (
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
