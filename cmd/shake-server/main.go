package main

import "github.com/oshokin/shake-couplet/cmd/shake-server/cmd"

func main() {
	cmd.Execute()
}
