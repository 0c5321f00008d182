// Package plugin provides conditions written in JavaScript. A script evaluates
// to a function taking an element proxy and returning true for a match:
//
//	el => el.text().trim().startsWith('Order') && el.attr('data-state') === 'ready'
//
// The proxy reads through the session: el.id(), el.text(), el.attr(name),
// el.classes(), el.displayed(), el.enabled(), el.clickable().
package plugin

import (
	"context"
	"io/ioutil"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gitlab.com/driverk/driverk"
	"gitlab.com/driverk/engine/query"
)

// DefaultScriptTimeout bounds a single evaluation of a script
const DefaultScriptTimeout = 2 * time.Second

// ErrNotAFunction when a script does not evaluate to a function
var ErrNotAFunction = errors.New("script must evaluate to a function")

// ScriptCondition is a query.Condition backed by a goja runtime. The runtime is
// not safe for concurrent use, so evaluations are serialized.
type ScriptCondition struct {
	lock    sync.Mutex
	vm      *goja.Runtime
	fn      goja.Callable
	name    string
	timeout time.Duration
}

var _ query.Condition = (*ScriptCondition)(nil)

// Script compiles src into a condition
func Script(name, src string) (*ScriptCondition, error) {
	s := &ScriptCondition{
		vm:      goja.New(),
		name:    name,
		timeout: DefaultScriptTimeout,
	}

	value, err := s.vm.RunString("(" + strings.TrimSpace(src) + "\n)")
	if err != nil {
		return nil, errors.Wrapf(err, "compiling script %s", name)
	}
	fn, ok := goja.AssertFunction(value)
	if !ok {
		return nil, errors.Wrap(ErrNotAFunction, name)
	}
	s.fn = fn
	return s, nil
}

// ScriptFile compiles the script at path, named after the file
func ScriptFile(path string) (*ScriptCondition, error) {
	src, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Script(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), string(src))
}

// WithTimeout returns s with a different per evaluation timeout
func (s *ScriptCondition) WithTimeout(timeout time.Duration) *ScriptCondition {
	s.lock.Lock()
	s.timeout = timeout
	s.lock.Unlock()
	return s
}

func (s *ScriptCondition) String() string {
	return "script " + s.name
}

// Check calls the script with a proxy for h. Errors raised by the session
// through the proxy are returned as is so fatal ones stay fatal, anything
// thrown by the script itself comes back as a plain error.
func (s *ScriptCondition) Check(ctx context.Context, c driverk.ProtocolClient, h driverk.ElementHandle) (bool, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	var sessionErr error
	proxy := s.proxy(ctx, c, h, &sessionErr)

	timer := time.AfterFunc(s.timeout, func() {
		s.vm.Interrupt("script timed out after " + s.timeout.String())
	})
	result, err := s.fn(goja.Undefined(), proxy)
	timer.Stop()
	s.vm.ClearInterrupt()

	if sessionErr != nil {
		return false, sessionErr
	}
	if err != nil {
		log.Debug().Str("script", s.name).Str("element", h.ID).Err(err).Msg("script failed")
		return false, errors.Wrapf(err, "script %s", s.name)
	}
	return result.ToBoolean(), nil
}

// proxy builds the element object handed to the script. A failing session call
// is stored in sessionErr and aborts the script.
func (s *ScriptCondition) proxy(ctx context.Context, c driverk.ProtocolClient, h driverk.ElementHandle, sessionErr *error) *goja.Object {
	vm := s.vm
	abort := func(err error) {
		*sessionErr = err
		panic(vm.NewGoError(err))
	}

	el := vm.NewObject()
	el.Set("id", func() string {
		return h.ID
	})
	el.Set("text", func() string {
		text, err := c.Text(ctx, h)
		if err != nil {
			abort(err)
		}
		return text
	})
	el.Set("attr", func(name string) goja.Value {
		value, ok, err := c.Attribute(ctx, h, name)
		if err != nil {
			abort(err)
		}
		if !ok {
			return goja.Null()
		}
		return vm.ToValue(value)
	})
	el.Set("classes", func() *goja.Object {
		classes, err := c.ClassList(ctx, h)
		if err != nil {
			abort(err)
		}
		items := make([]interface{}, 0, len(classes))
		for _, class := range classes {
			items = append(items, class)
		}
		return vm.NewArray(items...)
	})
	el.Set("displayed", func() bool {
		ok, err := c.IsDisplayed(ctx, h)
		if err != nil {
			abort(err)
		}
		return ok
	})
	el.Set("enabled", func() bool {
		ok, err := c.IsEnabled(ctx, h)
		if err != nil {
			abort(err)
		}
		return ok
	})
	el.Set("clickable", func() bool {
		ok, err := c.IsClickable(ctx, h)
		if err != nil {
			abort(err)
		}
		return ok
	})
	return el
}
