package main

import "github.com/oshokin/silent-alarm/cmd/alarm-ctl/cmd"

func main() {
	cmd.Execute()
}
