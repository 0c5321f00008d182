package query_test

import (
	"context"
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
	"gitlab.com/driverk/driverk"
	"gitlab.com/driverk/engine/query"
	"gitlab.com/driverk/mock"
)

func TestBranchAppliesFiltersInOrder(t *testing.T) {
	client := mock.NewClient()
	hiddenGo := client.AddElement(mock.Element{Tag: "button", Text: "Go", Hidden: true})
	visibleGo := client.AddElement(mock.Element{Tag: "button", Text: "Go"})
	visibleStop := client.AddElement(mock.Element{Tag: "button", Text: "Stop"})

	handles, err := query.Find(driverk.Tag("button"), query.Displayed(), query.WithText("Go")).
		Resolve(context.Background(), client)
	require.NoError(t, err)
	require.Equal(t, []driverk.ElementHandle{visibleGo}, handles)

	calls := client.Calls()
	methods := make([]string, len(calls))
	targets := make([]string, len(calls))
	for i, call := range calls {
		methods[i] = call.Method
		targets[i] = call.Target
	}
	// one lookup, then displayed before text, text skipped for the hidden one
	require.Equal(t, []string{
		mock.MethodFindElements,
		mock.MethodIsDisplayed,
		mock.MethodIsDisplayed, mock.MethodText,
		mock.MethodIsDisplayed, mock.MethodText,
	}, methods)
	require.Equal(t, []string{"tag=button", hiddenGo.ID, visibleGo.ID, visibleGo.ID, visibleStop.ID, visibleStop.ID}, targets)
}

func TestBranchKeepsRemoteOrder(t *testing.T) {
	client := mock.NewClient()
	var want []driverk.ElementHandle
	for _, text := range []string{"c", "a", "b"} {
		want = append(want, client.AddElement(mock.Element{Tag: "li", Text: text}))
	}

	handles, err := query.Find(driverk.Tag("li"), query.Displayed()).Resolve(context.Background(), client)
	require.NoError(t, err)
	require.Equal(t, want, handles)
}

func TestBranchWhereCopies(t *testing.T) {
	base := query.Find(driverk.CSS("input"))
	narrowed := base.Where(query.Enabled())
	require.Equal(t, "css=input", base.String())
	require.Equal(t, "css=input [enabled]", narrowed.String())
	require.Equal(t, driverk.CSS("input"), narrowed.Selector())
}

func TestConditions(t *testing.T) {
	client := mock.NewClient()
	ctx := context.Background()
	link := client.AddElement(mock.Element{
		Tag:        "a",
		Text:       "  Order #1234 shipped ",
		Attributes: map[string]string{"href": "/orders/1234", "class": "btn btn-primary", "aria-disabled": "false"},
		Obscured:   true,
	})

	cases := []struct {
		cond query.Condition
		want bool
		name string
	}{
		{query.Displayed(), true, "displayed"},
		{query.Enabled(), true, "enabled"},
		{query.Clickable(), false, "clickable"},
		{query.WithText("Order #1234 shipped"), true, `text="Order #1234 shipped"`},
		{query.WithText("Order"), false, `text="Order"`},
		{query.ContainingText("#1234"), true, `text contains "#1234"`},
		{query.MatchingText(regexp.MustCompile(`#\d+`)), true, `text matches /#\d+/`},
		{query.WithAttribute("href", "/orders/1234"), true, `href="/orders/1234"`},
		{query.WithAttribute("href", "/orders"), false, `href="/orders"`},
		{query.WithAttribute("target", ""), false, `target=""`},
		{query.HasAttribute("aria-disabled"), true, "has aria-disabled"},
		{query.HasAttribute("disabled"), false, "has disabled"},
		{query.WithClass("btn-primary"), true, "class btn-primary"},
		{query.WithClass("btn-danger"), false, "class btn-danger"},
		{query.Not(query.Clickable()), true, "not clickable"},
	}

	for _, tc := range cases {
		got, err := tc.cond.Check(ctx, client, link)
		if err != nil {
			t.Fatalf("%s: unexpected error %s", tc.name, err)
		}
		if got != tc.want {
			t.Fatalf("%s: expected %v got %v", tc.name, tc.want, got)
		}
		require.Equal(t, tc.name, tc.cond.String())
	}
}

func TestNotPassesErrorsThrough(t *testing.T) {
	client := mock.NewClient()
	gone := client.AddElement(mock.Element{Tag: "div"})
	client.Remove(gone.ID)

	ok, err := query.Not(query.Displayed()).Check(context.Background(), client, gone)
	require.False(t, ok)
	require.True(t, driverk.IsStale(err))
}
