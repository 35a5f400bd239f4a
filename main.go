package main

import (
	"github.com/seleknir/webrecorder/cmd"
)

func main() {
	cmd.Execute()
}
