package main

import "github.com/ivlev/apngtool/cmd/apngtool/cmd"

var version = "dev"

func main() {
	cmd.Version = version
	cmd.Execute()
}
