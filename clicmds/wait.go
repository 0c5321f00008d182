package clicmds

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"gitlab.com/driverk/engine/query"
)

// WaitFlags for the wait command
func WaitFlags() []cli.Flag {
	flags := append(SessionFlags(), QueryFlags()...)
	return append(flags,
		&cli.StringSliceFlag{
			Name:  "until",
			Usage: "conditions the element must meet, e.g. displayed,enabled (same forms as --filter)",
		},
		&cli.BoolFlag{
			Name:  "gone",
			Usage: "wait for the element to leave the page instead of for conditions",
			Value: false,
		},
		&cli.StringFlag{
			Name:  "message",
			Usage: "message to report on timeout",
			Value: "",
		},
	)
}

// Wait until the first element the query finds meets every --until condition
func Wait(ctx *cli.Context) error {
	q, err := buildQuery(ctx)
	if err != nil {
		return err
	}
	predicates, err := parseConditions(ctx.StringSlice("until"))
	if err != nil {
		return err
	}

	s, err := openSession(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to open session")
		return err
	}
	defer s.Close()

	w := query.WaitUntil(q.Configure(s.cfg)).
		Until(predicates...).
		Message(ctx.String("message")).
		Observe(s.observer)
	if ctx.Bool("gone") {
		w = w.Stale()
	}

	res := w.Run(s.bridge)
	fmt.Printf("%s after %d attempts in %s\n", res.State, res.Attempts, res.Elapsed)
	if res.State == query.Satisfied {
		fmt.Printf("%s\n", res.Element)
	}
	return res.Err
}
