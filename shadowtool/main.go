// Package main is the entry point of the shadowtool CLI.
package main

import "github.com/sarchlab/shadowmem/shadowtool/cmd"

func main() {
	cmd.Execute()
}
