package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/effective-security/aadauth/cmd/aadjwt-tool/cli"
	"github.com/effective-security/aadauth/internal/version"
	"github.com/effective-security/x/ctl"
)

type app struct {
	cli.Cli

	Validate cli.ValidateCmd `cmd:"" help:"validate a bearer token and print its claims"`
	Keys     cli.KeysCmd     `cmd:"" help:"print the published signing keys"`
	Discover cli.DiscoverCmd `cmd:"" help:"print the OpenID configuration of the tenant"`
}

func main() {
	realMain(os.Args, os.Stdin, os.Stdout, os.Stderr, os.Exit)
}

func realMain(args []string, in io.Reader, out io.Writer, errout io.Writer, exit func(int)) {
	cl := app{
		Cli: cli.Cli{},
	}
	cl.Cli.WithErrWriter(errout).
		WithWriter(out).
		WithReader(in)

	parser, err := kong.New(&cl,
		kong.Name("aadjwt-tool"),
		kong.Description("Azure AD bearer token tools"),
		kong.Writers(out, errout),
		kong.Exit(exit),
		ctl.BoolPtrMapper,
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"version": version.Current().String(),
		})
	if err != nil {
		panic(err)
	}

	ctx, err := parser.Parse(args[1:])
	if err != nil {
		parser.FatalIfErrorf(err)
		return
	}

	if cl.Debug {
		// in DEBUG more print command line
		_, _ = fmt.Fprintf(ctx.Stdout, "#\n# %s\n#\n", strings.Join(args, " "))
	}
	err = ctx.Run(&cl.Cli)
	ctx.FatalIfErrorf(err)
}
