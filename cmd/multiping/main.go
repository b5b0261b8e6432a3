package main

import (
	_ "embed"
	"log"

	pkgcli "example.com/multiping/pkg/cli"
	pkgutils "example.com/multiping/pkg/utils"
	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
)

// overwritten at build time by `git` output, see the Makefile
//
//go:embed version.txt
var versionText []byte

var CLI struct {
	Monitor pkgcli.MonitorCmd `cmd:"" default:"withargs" help:"Ping the given hosts and show a live table of their latency"`
	Version pkgcli.VersionCmd `cmd:"" help:"Print the build version"`
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	buildVersion, err := pkgutils.NewBuildVersion(versionText)
	if err != nil {
		log.Printf("failed to parse build version: %v", err)
	}
	sharedCtx := &pkgutils.GlobalSharedContext{BuildVersion: buildVersion}

	ctx := kong.Parse(&CLI,
		kong.Name("multiping"),
		kong.Description("Ping several hosts at once and keep per-host latency statistics."),
	)
	err = ctx.Run(sharedCtx)
	ctx.FatalIfErrorf(err)
}
