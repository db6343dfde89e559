package main

import "github.com/nextlevelbuilder/numcheck/cmd"

func main() {
	cmd.Execute()
}
