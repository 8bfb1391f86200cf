package main

import "github.com/oshokin/shake-couplet/cmd/shake-replay/cmd"

func main() {
	cmd.Execute()
}
