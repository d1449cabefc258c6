package main

import "github.com/gatherhall/server/cmd/server/cmd"

func main() {
	cmd.Execute()
}
