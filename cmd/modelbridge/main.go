package main

import "github.com/hupe1980/modelbridge/cmd/modelbridge/cmd"

func main() {
	cmd.Execute()
}
