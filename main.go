package main

import "relaybot/cmd"

func main() {
	cmd.Execute()
}
