package main

import "github.com/haal01/whiteboard/cmd"

func main() {
	cmd.Execute()
}
