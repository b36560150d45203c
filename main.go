package main

import "github.com/notargets/heatdist/cmd"

func main() {
	cmd.Execute()
}
