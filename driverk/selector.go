package driverk

import (
	"strconv"
	"strings"
)

// By is the strategy used to locate elements
type By int8

// revive:disable:var-naming
const (
	ByID By = iota + 1
	ByName
	ByClassName
	ByCSS
	ByTag
	ByXPath
	ByLinkText
	ByPartialLinkText
)

var byMap = map[By]string{
	ByID:              "id",
	ByName:            "name",
	ByClassName:       "class",
	ByCSS:             "css",
	ByTag:             "tag",
	ByXPath:           "xpath",
	ByLinkText:        "link",
	ByPartialLinkText: "partial_link",
}

func (b By) String() string {
	if s, ok := byMap[b]; ok {
		return s
	}
	return "by(" + strconv.Itoa(int(b)) + ")"
}

// ParseBy returns the strategy for its short name (css, xpath, id...)
func ParseBy(name string) (By, bool) {
	for k, v := range byMap {
		if v == name {
			return k, true
		}
	}
	return 0, false
}

// Selector identifies a matching strategy and its argument. Selectors are values
// and are never modified after construction.
type Selector struct {
	By    By
	Value string
}

func (s Selector) String() string {
	return s.By.String() + "=" + s.Value
}

// ID selects by the id attribute
func ID(id string) Selector { return Selector{By: ByID, Value: id} }

// Name selects by the name attribute
func Name(name string) Selector { return Selector{By: ByName, Value: name} }

// ClassName selects elements carrying the class
func ClassName(class string) Selector { return Selector{By: ByClassName, Value: class} }

// BadClassName reports a class name value no remote end accepts, empty or
// holding whitespace
func BadClassName(class string) bool {
	return class == "" || strings.ContainsAny(class, " \t\n\r\f")
}

// CSS selects with a css selector
func CSS(query string) Selector { return Selector{By: ByCSS, Value: query} }

// Tag selects by tag name
func Tag(tag string) Selector { return Selector{By: ByTag, Value: tag} }

// XPath selects with an xpath expression
func XPath(expr string) Selector { return Selector{By: ByXPath, Value: expr} }

// LinkText selects anchors whose text is exactly text
func LinkText(text string) Selector { return Selector{By: ByLinkText, Value: text} }

// PartialLinkText selects anchors whose text contains text
func PartialLinkText(text string) Selector { return Selector{By: ByPartialLinkText, Value: text} }
