package clicmds_test

import (
	"io/ioutil"
	"os"
	"testing"
	"time"

	"github.com/urfave/cli/v2"
	"gitlab.com/driverk/clicmds"
	"gitlab.com/driverk/driverk"
	"gitlab.com/driverk/store"
)

func testApp() *cli.App {
	app := cli.NewApp()
	app.Commands = []*cli.Command{
		{
			Name:   "find",
			Action: clicmds.Find,
			Flags:  clicmds.FindFlags(),
		},
		{
			Name:   "wait",
			Action: clicmds.Wait,
			Flags:  clicmds.WaitFlags(),
		},
		{
			Name:   "journal",
			Action: clicmds.Journal,
			Flags:  clicmds.JournalFlags(),
		},
	}
	return app
}

func TestJournal(t *testing.T) {
	dir, err := ioutil.TempDir("", "driverk-cli")
	if err != nil {
		t.Fatalf("error opening testdir: %s\n", err)
	}
	defer os.RemoveAll(dir)

	j := store.NewJournal(dir)
	if err := j.Init(); err != nil {
		t.Fatalf("error init journal: %s\n", err)
	}
	for i := 1; i <= 3; i++ {
		j.Record(&driverk.Attempt{OperationID: "op-1", Operation: "first", Target: "css=a", Number: i, Started: time.Now()})
	}
	j.Close()

	if err := testApp().Run([]string{"app", "journal", "--journal", dir}); err != nil {
		t.Fatalf("err: %s\n", err)
	}
	if err := testApp().Run([]string{"app", "journal", "--journal", dir, "--op", "op-1"}); err != nil {
		t.Fatalf("err: %s\n", err)
	}
	if err := testApp().Run([]string{"app", "journal", "--journal", dir, "--op", "op-2"}); err == nil {
		t.Fatalf("expected an error for an unknown operation")
	}
}

func TestFindRejectsBadQueries(t *testing.T) {
	for _, args := range [][]string{
		{"app", "find"},
		{"app", "find", "--sel", "bogus=x"},
		{"app", "find", "--css", "a", "--filter", "sparkly"},
		{"app", "find", "--css", "a", "--filter", "matches=("},
		{"app", "wait", "--css", "a", "--until", "attr=nope"},
		{"app", "find", "--css", "a", "--min-tries", "-1"},
	} {
		if err := testApp().Run(args); err == nil {
			t.Fatalf("%v: expected an error", args)
		}
	}
}

func TestFindRejectsBadConfig(t *testing.T) {
	if err := testApp().Run([]string{"app", "find", "--css", "a", "--driver", "lynx"}); err == nil {
		t.Fatalf("expected an unknown driver error")
	}
	if err := testApp().Run([]string{"app", "find", "--css", "a", "--config", "testdata/missing.toml"}); err == nil {
		t.Fatalf("expected a missing config error")
	}
}
