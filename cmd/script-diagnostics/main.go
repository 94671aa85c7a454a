// Package main provides the entry point for the script-diagnostics CLI.
package main

import "yqhp/script-diagnostics/cmd"

func main() {
	cmd.Execute()
}
