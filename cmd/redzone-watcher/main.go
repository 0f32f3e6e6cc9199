package main

import "github.com/reliefops/redzone/cmd/redzone-watcher/cmd"

func main() {
	cmd.Execute()
}
