// Package main provides the entry point for the stow Inbox router.
package main

import (
	"os"
)

func main() {
	os.Exit(Execute())
}
