package main

import (
	"os"

	"nimprobe/internal/cmd"
)

func main() {
	os.Exit(cmd.Run())
}
