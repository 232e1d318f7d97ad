package main

import "github.com/uubinn0/Challengobi-sub000/cmd"

func main() {
	cmd.Execute()
}
