package main

import "github.com/reliefops/redzone/cmd/redzone-server/cmd"

func main() {
	cmd.Execute()
}
