// Package main provides the entry point for the idbroker CLI. The CLI runs
// discovery locally, lists provider types and handles operator chores such
// as minting admin tokens and generating encryption keys.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
