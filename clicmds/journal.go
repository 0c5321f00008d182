package clicmds

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"gitlab.com/driverk/store"
)

// JournalFlags for the journal command
func JournalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "journal",
			Usage: "journal directory",
			Value: "driverk-journal",
		},
		&cli.StringFlag{
			Name:  "op",
			Usage: "print every attempt of this operation id",
			Value: "",
		},
		&cli.BoolFlag{
			Name:  "failed",
			Usage: "only list operations whose last attempt errored",
			Value: false,
		},
	}
}

// Journal prints recorded operations, or the attempts of one of them
func Journal(ctx *cli.Context) error {
	journal := store.NewJournal(ctx.String("journal"))
	if err := journal.Init(); err != nil {
		log.Error().Err(err).Msg("failed to init journal for viewing")
		return err
	}
	defer journal.Close()

	if id := ctx.String("op"); id != "" {
		attempts, err := journal.Attempts(id)
		if err != nil {
			return err
		}
		if len(attempts) == 0 {
			return fmt.Errorf("no attempts recorded for %s", id)
		}
		for _, a := range attempts {
			fmt.Printf("#%d %s matches=%d unmet=[%s] %s\n", a.Number, a.Elapsed, a.Matches, strings.Join(a.Unmet, ", "), a.Err)
		}
		return nil
	}

	ops, err := journal.Operations()
	if err != nil {
		return err
	}
	fmt.Printf("Had %d operations\n", len(ops))
	for _, op := range ops {
		if ctx.Bool("failed") && op.LastErr == "" {
			continue
		}
		fmt.Printf("%s %s %s attempts=%d elapsed=%s %s\n", op.ID, op.Operation, op.Target, op.Attempts, op.Elapsed, op.LastErr)
	}
	return nil
}
