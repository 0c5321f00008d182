package clicmds

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"gitlab.com/driverk/driverk"
)

// FindFlags for the find command
func FindFlags() []cli.Flag {
	flags := append(SessionFlags(), QueryFlags()...)
	return append(flags,
		&cli.BoolFlag{
			Name:  "all",
			Usage: "print every match instead of the first",
			Value: false,
		},
		&cli.BoolFlag{
			Name:  "required",
			Usage: "with --all, fail when nothing matched",
			Value: false,
		},
		&cli.BoolFlag{
			Name:  "exists",
			Usage: "only report whether anything matched",
			Value: false,
		},
		&cli.BoolFlag{
			Name:  "absent",
			Usage: "only report whether nothing matched",
			Value: false,
		},
	)
}

// Find looks up elements and prints their handles
func Find(ctx *cli.Context) error {
	q, err := buildQuery(ctx)
	if err != nil {
		return err
	}

	s, err := openSession(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to open session")
		return err
	}
	defer s.Close()

	q = q.Configure(s.cfg).Observe(s.observer)
	log.Info().Str("query", q.String()).Msg("finding")

	if ctx.Bool("exists") || ctx.Bool("absent") {
		var ok bool
		if ctx.Bool("absent") {
			ok, err = q.NotExists(s.bridge)
		} else {
			ok, err = q.Exists(s.bridge)
		}
		if err != nil {
			return err
		}
		fmt.Printf("%t\n", ok)
		return nil
	}

	var handles []driverk.ElementHandle
	switch {
	case ctx.Bool("all") && ctx.Bool("required"):
		handles, err = q.AllRequired(s.bridge)
	case ctx.Bool("all"):
		handles, err = q.All(s.bridge)
	default:
		var h driverk.ElementHandle
		if h, err = q.First(s.bridge); err == nil {
			handles = []driverk.ElementHandle{h}
		}
	}
	if err != nil {
		return err
	}

	fmt.Printf("Had %d matches\n", len(handles))
	for _, h := range handles {
		fmt.Printf("%s %s\n", h, describeHandle(s, h))
	}
	return nil
}

// describeHandle reads the text and classes of h
func describeHandle(s *session, h driverk.ElementHandle) string {
	var text string
	var classes []string
	err := s.bridge.Do(func(ctx context.Context, c driverk.ProtocolClient) error {
		var err error
		if text, err = c.Text(ctx, h); err != nil {
			return err
		}
		classes, err = c.ClassList(ctx, h)
		return err
	})
	if err != nil {
		return "[" + err.Error() + "]"
	}
	if len(text) > 40 {
		text = text[:40] + "..."
	}
	return fmt.Sprintf("[classes=%v text=%q]", classes, text)
}
