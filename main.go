package main

import "github.com/brensch/tripparquet/cmd"

func main() {
	cmd.Execute()
}
