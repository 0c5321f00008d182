package webdriver

import (
	"strconv"
	"strings"

	"gitlab.com/driverk/driverk"
)

// Strategy maps sel onto a W3C location strategy and value. id, name and class
// have no W3C strategy and are sent as css attribute selectors.
func Strategy(sel driverk.Selector) (using, value string, err error) {
	switch sel.By {
	case driverk.ByCSS:
		return "css selector", sel.Value, nil
	case driverk.ByTag:
		return "tag name", sel.Value, nil
	case driverk.ByXPath:
		return "xpath", sel.Value, nil
	case driverk.ByLinkText:
		return "link text", sel.Value, nil
	case driverk.ByPartialLinkText:
		return "partial link text", sel.Value, nil
	case driverk.ByID:
		return "css selector", `[id=` + quote(sel.Value) + `]`, nil
	case driverk.ByName:
		return "css selector", `[name=` + quote(sel.Value) + `]`, nil
	case driverk.ByClassName:
		if driverk.BadClassName(sel.Value) {
			return "", "", &driverk.ProtocolErr{Command: "find elements", Code: "invalid argument", Message: "class name " + strconv.Quote(sel.Value) + " must be a single class"}
		}
		return "css selector", `[class~=` + quote(sel.Value) + `]`, nil
	}
	return "", "", &driverk.ProtocolErr{Command: "find elements", Code: "invalid argument", Message: "unsupported locator strategy " + sel.By.String()}
}

var cssQuoter = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\a `)

func quote(v string) string {
	return `"` + cssQuoter.Replace(v) + `"`
}
