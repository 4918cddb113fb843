// Command compass retrieves local ordinance documents and extracts wind
// energy siting values from them.
//
// Usage:
//
//	compass process --config config.yaml
//	compass process --reference jurisdictions.csv --jurisdiction "Decatur County, Indiana"
package main

import (
	"fmt"
	"runtime/debug"

	"github.com/alecthomas/kong"

	"github.com/renewmap/compass/pkg/config"
)

// CLI defines the command-line interface.
type CLI struct {
	Process ProcessCmd `cmd:"" help:"Run ordinance extraction for the configured jurisdictions."`
	Version VersionCmd `cmd:"" help:"Show version information."`

	Config string `short:"c" help:"Path to YAML config file." type:"path"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("compass version %s\n", version)
	return nil
}

func main() {
	config.LoadDotEnv()

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("compass"),
		kong.Description("Ordinance document retrieval and structured value extraction."),
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run(&cli))
}
