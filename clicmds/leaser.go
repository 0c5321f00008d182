package clicmds

import (
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"gitlab.com/driverk/engine/browser"
)

// LeaserFlags for the leaser command
func LeaserFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "sock",
			Usage: "unix socket to serve leases on",
			Value: filepath.Join(os.TempDir(), browser.SOCK),
		},
		&cli.StringFlag{
			Name:  "chrome",
			Usage: "chrome binary",
			Value: "",
		},
		&cli.BoolFlag{
			Name:  "headless",
			Usage: "run leased browsers headless",
			Value: true,
		},
		&cli.BoolFlag{
			Name:  "killold",
			Usage: "kill leftover browsers before starting",
			Value: false,
		},
	}
}

// Leaser serves chrome instances to other driverk processes over a unix socket
func Leaser(ctx *cli.Context) error {
	opts := []browser.LeaserOption{
		browser.WithHeadless(ctx.Bool("headless")),
		browser.WithChromePath(ctx.String("chrome")),
	}
	if ctx.Bool("killold") {
		opts = append(opts, browser.WithKillOld())
	}
	leaser := browser.NewLocalLeaser(opts...)

	sock := ctx.String("sock")
	os.Remove(sock)
	l, err := net.Listen("unix", sock)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: browser.LeaserHandler(leaser)}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		log.Info().Msg("Ctrl-C Pressed, shutting down")
		srv.Close()
	}()

	log.Info().Str("sock", sock).Msg("serving browser leases")
	err = srv.Serve(l)
	if res, cleanupErr := leaser.Cleanup(); cleanupErr != nil {
		log.Error().Err(cleanupErr).Str("result", res).Msg("failed to clean up browsers")
	}
	os.Remove(sock)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}
