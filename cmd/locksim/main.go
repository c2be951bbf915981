// Command locksim runs reader/writer contention simulations against a
// datasetlock-guarded data set and reports lock statistics.
package main

import (
	"log"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}
