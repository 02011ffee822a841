package app

import (
	"fmt"
	"os"
	"runtime"

	"github.com/lrmpt/lrmpt/cli/db"
	"github.com/lrmpt/lrmpt/pkg/config"
	"github.com/urfave/cli"
)

func versionPrinter(c *cli.Context) {
	_, _ = fmt.Fprintf(c.App.Writer, "lrmpt\nVersion: %s\nGoVersion: %s\n",
		config.Version,
		runtime.Version(),
	)
}

// New creates an lrmpt instance of [cli.App] with all commands included.
func New() *cli.App {
	cli.VersionPrinter = versionPrinter
	ctl := cli.NewApp()
	ctl.Name = "lrmpt"
	ctl.Version = config.Version
	ctl.Usage = "Split-copy Merkle-Patricia trie key-value store"
	ctl.ErrWriter = os.Stdout

	ctl.Commands = append(ctl.Commands, db.NewCommands()...)
	return ctl
}
