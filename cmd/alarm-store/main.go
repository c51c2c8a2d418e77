package main

import "github.com/oshokin/silent-alarm/cmd/alarm-store/cmd"

func main() {
	cmd.Execute()
}
