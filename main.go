package main

import (
	"github.com/sirupsen/logrus"
	"github.com/zeu5/dqn-cartpole/benchmarks"
)

// main entry point, trains the agent unless a subcommand is given
func main() {
	// rootCommand defines a command line argument parser (some arguments and a subcommand to run)
	rootCommand := benchmarks.GetRootCommand()
	if err := rootCommand.Execute(); err != nil {
		logrus.Fatal(err)
	}
}
