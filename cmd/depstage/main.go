package main

import "github.com/oshokin/depstage/cmd/depstage/cmd"

func main() {
	cmd.Execute()
}
