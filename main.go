package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"gitlab.com/driverk/clicmds"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	app := cli.NewApp()
	app.Name = "driverk"
	app.Version = "0.1"
	app.Usage = "Find and wait for elements in a live browser"
	app.Flags = []cli.Flag{
		&cli.BoolFlag{
			Name:  "debug",
			Usage: "log every protocol call and poll attempt",
			Value: false,
		},
	}
	app.Before = func(ctx *cli.Context) error {
		if ctx.Bool("debug") {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		}
		return nil
	}
	app.Commands = []*cli.Command{
		{
			Name:    "find",
			Aliases: []string{"f"},
			Usage:   "find elements",
			Action:  clicmds.Find,
			Flags:   clicmds.FindFlags(),
		},
		{
			Name:    "wait",
			Aliases: []string{"w"},
			Usage:   "wait for an element to meet conditions",
			Action:  clicmds.Wait,
			Flags:   clicmds.WaitFlags(),
		},
		{
			Name:    "journal",
			Aliases: []string{"j"},
			Usage:   "view journaled poll attempts",
			Action:  clicmds.Journal,
			Flags:   clicmds.JournalFlags(),
		},
		{
			Name:   "leaser",
			Usage:  "serve local chrome instances over a unix socket",
			Action: clicmds.Leaser,
			Flags:  clicmds.LeaserFlags(),
		},
	}
	err := app.Run(os.Args)
	if err != nil {
		log.Fatal().Err(err).Msg("driverk failed")
	}
}
