package main

import "github.com/oshokin/shake-couplet/cmd/shake-page/cmd"

func main() {
	cmd.Execute()
}
