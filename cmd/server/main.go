// Package main is the entry point of the sprint planner API. It serves the
// HTTP API, drains the job queue, applies migrations and seeds projects.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
