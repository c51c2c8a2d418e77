package main

import "github.com/oshokin/silent-alarm/cmd/alarm-scheduler/cmd"

func main() {
	cmd.Execute()
}
