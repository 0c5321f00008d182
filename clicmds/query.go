package clicmds

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"gitlab.com/driverk/driverk"
	"gitlab.com/driverk/engine/plugin"
	"gitlab.com/driverk/engine/query"
)

// shorthand selector flags, branches from them follow any --sel branches in this order
var selectorFlags = []struct {
	name string
	by   driverk.By
}{
	{"css", driverk.ByCSS},
	{"xpath", driverk.ByXPath},
	{"id", driverk.ByID},
	{"name", driverk.ByName},
	{"class", driverk.ByClassName},
	{"tag", driverk.ByTag},
	{"link", driverk.ByLinkText},
	{"partial-link", driverk.ByPartialLinkText},
}

// QueryFlags describe the branches of a query and the filters every branch applies
func QueryFlags() []cli.Flag {
	flags := []cli.Flag{
		&cli.StringSliceFlag{
			Name:  "sel",
			Usage: "branch as by=value, e.g. css=button.submit (repeatable, tried in order)",
		},
	}
	for _, sf := range selectorFlags {
		flags = append(flags, &cli.StringSliceFlag{
			Name:  sf.name,
			Usage: "branch matching by " + sf.by.String(),
		})
	}
	return append(flags,
		&cli.StringSliceFlag{
			Name:  "filter",
			Usage: "filter applied to every branch, e.g. displayed, text=Go, contains=Go, class=primary, attr=type=submit",
		},
		&cli.StringSliceFlag{
			Name:  "script",
			Usage: "javascript filter file applied to every branch",
		},
		&cli.BoolFlag{
			Name:  "nowait",
			Usage: "look up once instead of polling",
			Value: false,
		},
		&cli.IntFlag{
			Name:  "min-tries",
			Usage: "keep polling past the timeout until this many attempts were made",
			Value: 0,
		},
	)
}

// buildQuery from the query flags
func buildQuery(ctx *cli.Context) (query.Query, error) {
	filters, err := parseConditions(ctx.StringSlice("filter"))
	if err != nil {
		return query.Query{}, err
	}
	for _, path := range ctx.StringSlice("script") {
		script, err := plugin.ScriptFile(path)
		if err != nil {
			return query.Query{}, err
		}
		filters = append(filters, script)
	}

	branches := make([]query.Branch, 0)
	for _, raw := range ctx.StringSlice("sel") {
		sel, err := parseSelector(raw)
		if err != nil {
			return query.Query{}, err
		}
		branches = append(branches, query.Find(sel, filters...))
	}
	for _, sf := range selectorFlags {
		for _, value := range ctx.StringSlice(sf.name) {
			branches = append(branches, query.Find(driverk.Selector{By: sf.by, Value: value}, filters...))
		}
	}
	q := query.New(branches...).MinTries(ctx.Int("min-tries"))
	if ctx.Bool("nowait") {
		q = q.NoWait()
	}
	return q, q.Validate()
}

// parseSelector of the form by=value
func parseSelector(raw string) (driverk.Selector, error) {
	parts := strings.SplitN(raw, "=", 2)
	if len(parts) != 2 {
		return driverk.Selector{}, errors.Errorf("selector %q must be by=value", raw)
	}
	by, ok := driverk.ParseBy(parts[0])
	if !ok {
		return driverk.Selector{}, errors.Errorf("unknown selector kind %q", parts[0])
	}
	return driverk.Selector{By: by, Value: parts[1]}, nil
}

// parseConditions accepts displayed, enabled, clickable, hidden, disabled,
// text=X, contains=X, matches=RE, class=X, has=NAME and attr=NAME=VALUE.
// Comma separated lists are split.
func parseConditions(raws []string) ([]query.Condition, error) {
	conds := make([]query.Condition, 0)
	for _, raw := range raws {
		for _, s := range splitList(raw) {
			cond, err := parseCondition(s)
			if err != nil {
				return nil, err
			}
			conds = append(conds, cond)
		}
	}
	return conds, nil
}

func parseCondition(raw string) (query.Condition, error) {
	name, arg := raw, ""
	if idx := strings.IndexByte(raw, '='); idx >= 0 {
		name, arg = raw[:idx], raw[idx+1:]
	}

	switch name {
	case "displayed":
		return query.Displayed(), nil
	case "hidden":
		return query.Not(query.Displayed()), nil
	case "enabled":
		return query.Enabled(), nil
	case "disabled":
		return query.Not(query.Enabled()), nil
	case "clickable":
		return query.Clickable(), nil
	case "text":
		return query.WithText(arg), nil
	case "contains":
		return query.ContainingText(arg), nil
	case "matches":
		re, err := regexp.Compile(arg)
		if err != nil {
			return nil, errors.Wrapf(err, "condition %q", raw)
		}
		return query.MatchingText(re), nil
	case "class":
		return query.WithClass(arg), nil
	case "has":
		return query.HasAttribute(arg), nil
	case "attr":
		kv := strings.SplitN(arg, "=", 2)
		if len(kv) != 2 {
			return nil, errors.Errorf("condition %q must be attr=name=value", raw)
		}
		return query.WithAttribute(kv[0], kv[1]), nil
	}
	return nil, errors.Errorf("unknown condition %q", raw)
}

func splitList(raw string) []string {
	if strings.HasPrefix(raw, "text=") || strings.HasPrefix(raw, "contains=") || strings.HasPrefix(raw, "matches=") || strings.HasPrefix(raw, "attr=") {
		return []string{raw}
	}
	out := make([]string, 0)
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
