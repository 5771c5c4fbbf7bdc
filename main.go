package main

import "github.com/Yates-Labs/vecview/cmd"

func main() {
	cmd.Execute()
}
