// cmd/dashsync/main.go
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"
)

var configPath = flag.String("config", "", "path to a YAML/JSON config file; DASHSYNC_* env vars override it")

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")

	commander.Register(&runCmd{}, "")
	commander.Register(&refreshCmd{}, "one-shot")
	commander.Register(&probeCmd{}, "one-shot")
	commander.Register(&quotesCmd{}, "one-shot")
	commander.Register(&positionsCmd{}, "one-shot")
	commander.Register(&accountsCmd{}, "one-shot")
	commander.Register(&signalsCmd{}, "one-shot")
	commander.Register(&recentCmd{}, "one-shot")
	commander.Register(&streamCmd{start: true}, "streaming")
	commander.Register(&streamCmd{start: false}, "streaming")

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}
