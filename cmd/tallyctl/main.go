// Command tallyctl runs operator tasks against a tally deployment:
// aggregation passes, classifier training, offline classifier benchmarks,
// and validation of serialized classifier records.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
