package cli

import (
	"context"

	"github.com/alecthomas/kong"

	"github.com/ardnew/tracepoint/cli/cmd"
	"github.com/ardnew/tracepoint/control"
	"github.com/ardnew/tracepoint/pkg"
)

// DefaultAddr is the default control server address.
const DefaultAddr = "localhost:6070"

// CLI is the top-level command-line interface for tpctl.
type CLI struct {
	Log   logConfig   `embed:"" group:"log"   prefix:"log-"`
	Pprof pprofConfig `embed:"" group:"pprof" prefix:"pprof-"`

	Addr string `default:"${addr}" help:"Control server address." short:"a"`

	List      cmd.List      `cmd:"" default:"withargs" help:"List tracepoints"`
	Enable    cmd.Enable    `cmd:""                    help:"Enable matching tracepoints at runtime"`
	Disable   cmd.Disable   `cmd:""                    help:"Disable matching tracepoints at runtime"`
	Configure cmd.Configure `cmd:""                    help:"Set tracepoints as build-time constants and recompile units"`
	Apply     cmd.Apply     `cmd:""                    help:"Apply the rules of a configuration file"`
	Message   cmd.Message   `cmd:""                    help:"Send a message to the process's sink"`
	UI        cmd.UI        `cmd:"" name:"ui"          help:"Browse and toggle tracepoints interactively"`
	View      cmd.View      `cmd:""                    help:"Print a recorded event stream"`
	Demo      cmd.Demo      `cmd:""                    help:"Run an instrumented demo workload"`
	Init      cmd.Init      `cmd:""                    help:"Initialize configuration file"`
	Version   cmd.Version   `cmd:""                    help:"Print version"`
}

// Run executes the tpctl CLI with the given context and arguments.
// The exit function is called with the appropriate exit code upon completion.
func Run(
	ctx context.Context,
	exit func(code int),
	args ...string,
) error {
	var cli CLI

	err := mkdirAllRequired()
	if err != nil {
		return err
	}

	configFilePath := configPath(configFile)

	vars := kong.Vars{
		cmd.AddrIdentifier:   DefaultAddr,
		cmd.ConfigIdentifier: configFilePath,
		cmd.CacheIdentifier:  cacheDir(),
	}.
		CloneWith(cli.Log.vars()).
		CloneWith(cli.Pprof.vars())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Logger flags are applied before parsing so parse errors use them.
	cli.Log.scan(args)

	parser, err := kong.New(&cli,
		kong.Name(pkg.Name),
		kong.Description(pkg.Description),
		kong.UsageOnError(),
		kong.Exit(exit),
		kong.ExplicitGroups(
			[]kong.Group{cli.Log.group(), cli.Pprof.group()},
		),
		kong.BindSingletonProvider(func() context.Context {
			return ctx
		}),
		kong.ConfigureHelp(
			kong.HelpOptions{
				Compact:             true,
				Summary:             true,
				Tree:                true,
				FlagsLast:           false,
				NoAppSummary:        false,
				NoExpandSubcommands: true,
			}),
		kong.Configuration(kong.JSON, configFilePath+".json"),
		kong.Configuration(resolve(cmd.ConfigIdentifier), configFilePath),
		vars,
	)
	if err != nil {
		return err
	}

	ktx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	ctx = cmd.WithContext(ctx, ktx)
	ctx = cmd.WithRemote(ctx, control.NewClient(cli.Addr, nil))

	cli.Log.start(ctx)

	// [pprofConfig.start] is a no-op unless built with tag pprof and enabled.
	defer cli.Pprof.start(ctx)()

	return ktx.Run(ctx, &cli)
}
