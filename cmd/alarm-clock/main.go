package main

import "github.com/oshokin/silent-alarm/cmd/alarm-clock/cmd"

func main() {
	cmd.Execute()
}
