package query_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"gitlab.com/driverk/driverk"
	"gitlab.com/driverk/engine/query"
	"gitlab.com/driverk/mock"
)

func TestWaiterNeedsAllPredicatesOnOneAttempt(t *testing.T) {
	client := mock.NewClient()
	button := client.AddElement(mock.Element{
		Tag:            "button",
		DisplayedAfter: 100 * time.Millisecond,
		EnabledAfter:   200 * time.Millisecond,
	})
	br := newBridge(t, client)
	rec := &recorder{}

	client.ResetClock()
	res := query.WaitFor(button).
		Until(query.Displayed(), query.Enabled()).
		Every(20 * time.Millisecond).
		Timeout(2 * time.Second).
		Observe(rec).
		Run(br)

	require.NoError(t, res.Err)
	require.Equal(t, query.Satisfied, res.State)
	require.Equal(t, button, res.Element)
	require.GreaterOrEqual(t, int64(res.Elapsed), int64(190*time.Millisecond))

	attempts := rec.all()
	require.Equal(t, res.Attempts, len(attempts))
	sawDisplayedOnly := false
	for _, a := range attempts[:len(attempts)-1] {
		require.NotEmpty(t, a.Unmet, "attempt %d satisfied before the last one", a.Number)
		if len(a.Unmet) == 1 && a.Unmet[0] == "enabled" {
			sawDisplayedOnly = true
		}
	}
	require.True(t, sawDisplayedOnly, "expected attempts where only enabled was unmet")
	require.Empty(t, attempts[len(attempts)-1].Unmet)
}

func TestWaiterProtocolErrorFailsOnFirstAttempt(t *testing.T) {
	client := mock.NewClient()
	button := client.AddElement(mock.Element{Tag: "button", Hidden: true})
	br := newBridge(t, client)

	protoErr := &driverk.ProtocolErr{Command: "is displayed", Status: 500, Code: "unknown error"}
	client.FailNext(mock.MethodIsDisplayed, protoErr)

	res := query.WaitFor(button).
		Until(query.Displayed()).
		Every(20 * time.Millisecond).
		Timeout(time.Second).
		Run(br)

	require.Equal(t, query.Failed, res.State)
	require.Equal(t, 1, res.Attempts)
	require.True(t, res.Err == protoErr, "expected the protocol error unchanged, got %v", res.Err)
	require.Equal(t, 1, client.CallCount(mock.MethodIsDisplayed))
}

func TestWaiterTimesOutNamingUnmetPredicates(t *testing.T) {
	client := mock.NewClient()
	button := client.AddElement(mock.Element{Tag: "button", Disabled: true})
	br := newBridge(t, client)

	start := time.Now()
	_, err := query.WaitFor(button).
		Until(query.Displayed(), query.Enabled()).
		Every(20 * time.Millisecond).
		Timeout(100 * time.Millisecond).
		Wait(br)

	require.True(t, driverk.IsTimeout(err), "got %v", err)
	require.Contains(t, err.Error(), "enabled")
	require.NotContains(t, err.Error(), "displayed,")
	require.GreaterOrEqual(t, int64(time.Since(start)), int64(100*time.Millisecond))
}

func TestWaiterTimeoutCarriesMessage(t *testing.T) {
	client := mock.NewClient()
	spinner := client.AddElement(mock.Element{Tag: "div", Attributes: map[string]string{"class": "spinner"}})
	br := newBridge(t, client)

	res := query.WaitFor(spinner).
		Until(query.Not(query.Displayed())).
		Every(20 * time.Millisecond).
		Timeout(60 * time.Millisecond).
		Message("spinner never went away after saving the profile").
		Run(br)

	require.Equal(t, query.TimedOut, res.State)
	var timeoutErr *driverk.TimeoutErr
	require.True(t, errors.As(res.Err, &timeoutErr))
	require.Equal(t, "spinner never went away after saving the profile", timeoutErr.Message)
	require.GreaterOrEqual(t, res.Attempts, 3)
}

func TestWaiterQueryTargetResolvesEachAttempt(t *testing.T) {
	client := mock.NewClient()
	first := client.AddElement(mock.Element{Tag: "li", Text: "loading", RemoveAfter: 60 * time.Millisecond})
	second := client.AddElement(mock.Element{Tag: "li", Text: "ready", AppearAfter: 60 * time.Millisecond})
	br := newBridge(t, client)

	q := query.New(query.Find(driverk.Tag("li")))
	client.ResetClock()
	h, err := query.WaitUntil(q).
		Until(query.WithText("ready")).
		Every(20 * time.Millisecond).
		Timeout(time.Second).
		Wait(br)

	require.NoError(t, err)
	require.Equal(t, second, h)
	require.NotEqual(t, first, h)
}

func TestWaiterQueryTargetRetriesWhenNothingMatched(t *testing.T) {
	client := mock.NewClient()
	br := newBridge(t, client)

	res := query.WaitUntil(query.New(query.Find(driverk.CSS("#toast")))).
		Until(query.Displayed()).
		Every(20 * time.Millisecond).
		Timeout(80 * time.Millisecond).
		Run(br)

	require.Equal(t, query.TimedOut, res.State)
	require.Contains(t, res.Err.Error(), "no element matched css=#toast")
	require.Greater(t, res.Attempts, 1)
	require.Equal(t, 0, client.CallCount(mock.MethodIsDisplayed))
}

func TestWaiterQueryTargetToleratesStale(t *testing.T) {
	client := mock.NewClient()
	row := client.AddElement(mock.Element{Tag: "tr"})
	br := newBridge(t, client)

	client.FailNext(mock.MethodIsDisplayed, &driverk.StaleElementErr{ID: row.ID})
	res := query.WaitUntil(query.New(query.Find(driverk.Tag("tr")))).
		Until(query.Displayed()).
		Every(20 * time.Millisecond).
		Timeout(time.Second).
		Run(br)

	require.Equal(t, query.Satisfied, res.State)
	require.Equal(t, 2, res.Attempts)
}

func TestWaiterFixedStaleHandleFails(t *testing.T) {
	client := mock.NewClient()
	row := client.AddElement(mock.Element{Tag: "tr"})
	br := newBridge(t, client)
	client.Remove(row.ID)

	res := query.WaitFor(row).Until(query.Displayed()).Every(20 * time.Millisecond).Run(br)
	require.Equal(t, query.Failed, res.State)
	require.Equal(t, 1, res.Attempts)
	require.True(t, driverk.IsStale(res.Err))
}

func TestWaiterQueryTargetStaleScopeFails(t *testing.T) {
	client := mock.NewClient()
	table := client.AddElement(mock.Element{Tag: "table"})
	client.AddElement(mock.Element{Tag: "tr", Parent: table.ID})
	br := newBridge(t, client)
	client.Remove(table.ID)

	res := query.WaitUntil(query.New(query.Find(driverk.Tag("tr")).Within(table))).
		Until(query.Displayed()).
		Every(20 * time.Millisecond).
		Timeout(5 * time.Second).
		Run(br)

	require.Equal(t, query.Failed, res.State)
	require.Equal(t, 1, res.Attempts)
	require.True(t, driverk.IsStale(res.Err), "got %v", res.Err)
	require.Less(t, int64(res.Elapsed), int64(time.Second))
}

func TestZeroWaiterIsInvalid(t *testing.T) {
	client := mock.NewClient()
	br := newBridge(t, client)

	var validationErr *driverk.ValidationErr
	var w query.Waiter
	require.True(t, errors.As(w.Validate(), &validationErr))

	res := w.Until(query.Displayed()).Every(20 * time.Millisecond).Timeout(time.Second).Run(br)
	require.Equal(t, query.Failed, res.State)
	require.Equal(t, 0, res.Attempts)
	require.True(t, errors.As(res.Err, &validationErr), "got %v", res.Err)
	require.Contains(t, res.Err.Error(), "wait has no target")

	_, err := w.Wait(br)
	require.True(t, errors.As(err, &validationErr))
}

func TestWaiterCustomPredicateErrorIsTerminal(t *testing.T) {
	client := mock.NewClient()
	row := client.AddElement(mock.Element{Tag: "tr"})
	br := newBridge(t, client)

	predErr := errors.New("cannot read row state")
	res := query.WaitFor(row).
		Until(query.Func("row ready", func(ctx context.Context, c driverk.ProtocolClient, h driverk.ElementHandle) (bool, error) {
			return false, predErr
		})).
		Every(20 * time.Millisecond).
		Run(br)

	require.Equal(t, query.Failed, res.State)
	require.True(t, res.Err == predErr)
	require.Equal(t, 1, res.Attempts)
}

func TestWaiterValidation(t *testing.T) {
	client := mock.NewClient()
	row := client.AddElement(mock.Element{Tag: "tr"})
	br := newBridge(t, client)

	var validationErr *driverk.ValidationErr

	res := query.WaitFor(row).Until(query.Displayed()).Every(-time.Millisecond).Run(br)
	require.Equal(t, query.Failed, res.State)
	require.Equal(t, 0, res.Attempts)
	require.True(t, errors.As(res.Err, &validationErr))

	_, err := query.WaitFor(row).Every(200 * time.Millisecond).Timeout(100 * time.Millisecond).Wait(br)
	require.True(t, errors.As(err, &validationErr))

	_, err = query.WaitUntil(query.New()).Wait(br)
	require.True(t, errors.As(err, &validationErr))

	require.Empty(t, client.Calls())
}

func TestStateString(t *testing.T) {
	require.Equal(t, "satisfied", query.Satisfied.String())
	require.Equal(t, "timed_out", query.TimedOut.String())
	require.Equal(t, "unknown", query.State(42).String())
}

func TestWaiterStaleHandle(t *testing.T) {
	client := mock.NewClient()
	spinner := client.AddElement(mock.Element{Tag: "div", RemoveAfter: 100 * time.Millisecond})
	br := newBridge(t, client)

	client.ResetClock()
	res := query.WaitFor(spinner).Stale().Every(20 * time.Millisecond).Timeout(2 * time.Second).Run(br)
	require.NoError(t, res.Err)
	require.Equal(t, query.Satisfied, res.State)
	require.Equal(t, spinner, res.Element)
	require.Greater(t, res.Attempts, 1)
	require.GreaterOrEqual(t, int64(res.Elapsed), int64(90*time.Millisecond))
}

func TestWaiterStaleQueryTarget(t *testing.T) {
	client := mock.NewClient()
	client.AddElement(mock.Element{Tag: "div", Attributes: map[string]string{"class": "toast"}, RemoveAfter: 60 * time.Millisecond})
	br := newBridge(t, client)

	client.ResetClock()
	res := query.WaitUntil(query.New(query.Find(driverk.CSS(".toast")))).Stale().Every(20 * time.Millisecond).Timeout(2 * time.Second).Run(br)
	require.NoError(t, res.Err)
	require.Equal(t, query.Satisfied, res.State)
	require.Equal(t, driverk.ElementHandle{}, res.Element)

	table := client.AddElement(mock.Element{Tag: "table"})
	client.AddElement(mock.Element{Tag: "tr", Parent: table.ID})
	client.Remove(table.ID)
	res = query.WaitUntil(query.New(query.Find(driverk.Tag("tr")).Within(table))).Stale().Every(20 * time.Millisecond).Run(br)
	require.Equal(t, query.Satisfied, res.State, "a stale scope means the target is gone")
	require.Equal(t, 1, res.Attempts)
}

func TestWaiterStaleTimesOut(t *testing.T) {
	client := mock.NewClient()
	row := client.AddElement(mock.Element{Tag: "tr"})
	br := newBridge(t, client)

	res := query.WaitFor(row).Stale().Every(20 * time.Millisecond).Timeout(60 * time.Millisecond).Run(br)
	require.Equal(t, query.TimedOut, res.State)
	require.True(t, driverk.IsTimeout(res.Err))
	require.Contains(t, res.Err.Error(), "unmet: stale")

	var validationErr *driverk.ValidationErr
	res = query.WaitFor(row).Stale().Until(query.Displayed()).Run(br)
	require.Equal(t, query.Failed, res.State)
	require.True(t, errors.As(res.Err, &validationErr))
}

func TestWaiterMinTries(t *testing.T) {
	client := mock.NewClient()
	row := client.AddElement(mock.Element{Tag: "tr", Hidden: true})
	br := newBridge(t, client)

	res := query.WaitFor(row).Until(query.Displayed()).Every(20 * time.Millisecond).Timeout(20 * time.Millisecond).MinTries(4).Run(br)
	require.Equal(t, query.TimedOut, res.State)
	require.Equal(t, 4, res.Attempts)

	res = query.WaitUntil(query.New(query.Find(driverk.Tag("tr"))).MinTries(3)).Until(query.Displayed()).Every(20 * time.Millisecond).Timeout(20 * time.Millisecond).Run(br)
	require.Equal(t, 3, res.Attempts, "min tries carries over from the query")
}
