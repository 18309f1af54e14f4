package main

import (
	"VibeLock/cmd"
)

func main() {
	cmd.Execute()
}
