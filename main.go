package main

import "github.com/gaurav-prasanna/tutorialpipe/cmd"

func main() {
	cmd.Execute()
}
