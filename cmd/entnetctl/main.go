// Command entnetctl drives and inspects an EntityNetwork replication engine.
package main

import (
	"os"

	"github.com/JeffM2501/EntityNetwork/cmd/entnetctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		commands.PrintErr("%v", err)
		os.Exit(1)
	}
}
