package main

import (
	"github.com/praetorian-inc/pimctl/cmd"
)

func main() {
	cmd.Execute()
}
