// Command recollect runs the media memory server and offers local tooling
// for asking questions, re-analysing media and following processing status.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
