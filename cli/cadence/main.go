package main

import (
	"os"

	cadencecmder "github.com/papercomputeco/cadence/cmd/cadence"
)

func main() {
	cmd := cadencecmder.NewCadenceCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
