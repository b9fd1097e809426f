package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/broady/calllog/internal/config"
)

type CLI struct {
	Version VersionCmd `cmd:"" help:"Print version information."`
	Serve   ServeCmd   `cmd:"" help:"Serve the demo services over HTTP with call logging."`
	Demo    DemoCmd    `cmd:"" help:"Run the logging scenarios in-process and exit."`
}

type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println(Version())
	return nil
}

func main() {
	// Env tags are resolved during parsing, so .env must be loaded first.
	if err := config.LoadDotenv(); err != nil {
		fmt.Fprintln(os.Stderr, "calllog:", err)
		os.Exit(1)
	}

	cli := &CLI{}
	ctx := kong.Parse(cli,
		kong.Name("calllog"),
		kong.Description("Log every handler call: arguments in, result or error out."),
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run())
}
