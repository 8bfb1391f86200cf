package main

import "github.com/oshokin/shake-couplet/cmd/shake-watch/cmd"

func main() {
	cmd.Execute()
}
