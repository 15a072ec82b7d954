package main

import "github.com/kamusis/coach-cli/cmd"

func main() {
	cmd.Execute()
}
