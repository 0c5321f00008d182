package query

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"gitlab.com/driverk/driverk"
)

// Condition is a predicate over a single resolved element. It serves both as a
// branch filter and as a waiter predicate. Check may read from the remote
// session through c but must not change the document.
type Condition interface {
	Check(ctx context.Context, c driverk.ProtocolClient, h driverk.ElementHandle) (bool, error)
	String() string
}

// CheckFunc is the signature of custom conditions
type CheckFunc func(ctx context.Context, c driverk.ProtocolClient, h driverk.ElementHandle) (bool, error)

type condition struct {
	name  string
	check CheckFunc
}

func (cond *condition) Check(ctx context.Context, c driverk.ProtocolClient, h driverk.ElementHandle) (bool, error) {
	return cond.check(ctx, c, h)
}

func (cond *condition) String() string {
	return cond.name
}

// Func makes a custom condition, name is used in logs and timeout messages
func Func(name string, fn CheckFunc) Condition {
	return &condition{name: name, check: fn}
}

// Displayed is rendered and visible
func Displayed() Condition {
	return Func("displayed", func(ctx context.Context, c driverk.ProtocolClient, h driverk.ElementHandle) (bool, error) {
		return c.IsDisplayed(ctx, h)
	})
}

// Enabled is not disabled
func Enabled() Condition {
	return Func("enabled", func(ctx context.Context, c driverk.ProtocolClient, h driverk.ElementHandle) (bool, error) {
		return c.IsEnabled(ctx, h)
	})
}

// Clickable is displayed, enabled and not covered by another element
func Clickable() Condition {
	return Func("clickable", func(ctx context.Context, c driverk.ProtocolClient, h driverk.ElementHandle) (bool, error) {
		return c.IsClickable(ctx, h)
	})
}

// WithText matches the element's text with surrounding whitespace removed
func WithText(text string) Condition {
	return Func(fmt.Sprintf("text=%q", text), func(ctx context.Context, c driverk.ProtocolClient, h driverk.ElementHandle) (bool, error) {
		actual, err := c.Text(ctx, h)
		if err != nil {
			return false, err
		}
		return strings.TrimSpace(actual) == text, nil
	})
}

// ContainingText matches if the element's text contains text
func ContainingText(text string) Condition {
	return Func(fmt.Sprintf("text contains %q", text), func(ctx context.Context, c driverk.ProtocolClient, h driverk.ElementHandle) (bool, error) {
		actual, err := c.Text(ctx, h)
		if err != nil {
			return false, err
		}
		return strings.Contains(actual, text), nil
	})
}

// MatchingText matches the element's text against re
func MatchingText(re *regexp.Regexp) Condition {
	return Func("text matches /"+re.String()+"/", func(ctx context.Context, c driverk.ProtocolClient, h driverk.ElementHandle) (bool, error) {
		actual, err := c.Text(ctx, h)
		if err != nil {
			return false, err
		}
		return re.MatchString(actual), nil
	})
}

// WithAttribute matches if the attribute is present and equal to value
func WithAttribute(name, value string) Condition {
	return Func(fmt.Sprintf("%s=%q", name, value), func(ctx context.Context, c driverk.ProtocolClient, h driverk.ElementHandle) (bool, error) {
		actual, ok, err := c.Attribute(ctx, h, name)
		if err != nil || !ok {
			return false, err
		}
		return actual == value, nil
	})
}

// HasAttribute matches if the attribute is present at all
func HasAttribute(name string) Condition {
	return Func("has "+name, func(ctx context.Context, c driverk.ProtocolClient, h driverk.ElementHandle) (bool, error) {
		_, ok, err := c.Attribute(ctx, h, name)
		return ok, err
	})
}

// WithClass matches if class is in the element's class list
func WithClass(class string) Condition {
	return Func("class "+class, func(ctx context.Context, c driverk.ProtocolClient, h driverk.ElementHandle) (bool, error) {
		classes, err := c.ClassList(ctx, h)
		if err != nil {
			return false, err
		}
		for _, name := range classes {
			if name == class {
				return true, nil
			}
		}
		return false, nil
	})
}

// Not inverts cond, errors are returned as is
func Not(cond Condition) Condition {
	return Func("not "+cond.String(), func(ctx context.Context, c driverk.ProtocolClient, h driverk.ElementHandle) (bool, error) {
		ok, err := cond.Check(ctx, c, h)
		if err != nil {
			return false, err
		}
		return !ok, nil
	})
}

func describe(conds []Condition) string {
	names := make([]string, len(conds))
	for i, cond := range conds {
		names[i] = cond.String()
	}
	return strings.Join(names, ", ")
}
