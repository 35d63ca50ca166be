package main

import "github.com/tasknest/apiserver/cmd"

func main() {
	cmd.Execute()
}
