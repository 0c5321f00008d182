package mock

import (
	"strings"
	"time"

	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"github.com/pkg/errors"
	"gitlab.com/driverk/driverk"
	"golang.org/x/net/html"
)

// document is the html tree of the elements present at one instant
type document struct {
	root   *html.Node
	byNode map[*html.Node]*Element
	nodes  map[string]*html.Node
}

// snapshot builds the document as it is at now, must hold mu
func (c *Client) snapshot(now time.Duration) *document {
	doc := &document{
		root:   &html.Node{Type: html.DocumentNode},
		byNode: make(map[*html.Node]*Element),
		nodes:  make(map[string]*html.Node),
	}

	for _, ele := range c.elements {
		if !c.isPresent(ele, now) {
			continue
		}
		node := &html.Node{Type: html.ElementNode, Data: strings.ToLower(ele.Tag)}
		for k, v := range ele.Attributes {
			node.Attr = append(node.Attr, html.Attribute{Key: k, Val: v})
		}
		if text := textAt(ele, now); text != "" {
			node.AppendChild(&html.Node{Type: html.TextNode, Data: text})
		}
		doc.byNode[node] = ele
		doc.nodes[ele.ID] = node
	}

	// elements are added parents first so every parent node exists by now
	for _, ele := range c.elements {
		node, ok := doc.nodes[ele.ID]
		if !ok {
			continue
		}
		parent, ok := doc.nodes[ele.Parent]
		if !ok {
			parent = doc.root
		}
		parent.AppendChild(node)
	}
	return doc
}

// find the elements matching sel in document order
func (d *document) find(sel driverk.Selector, now time.Duration) ([]*Element, error) {
	var (
		nodes []*html.Node
		err   error
	)

	switch sel.By {
	case driverk.ByCSS:
		nodes, err = queryCSS(d.root, sel.Value)
	case driverk.ByXPath:
		nodes, err = queryXPath(d.root, sel.Value)
	case driverk.ByID:
		nodes = d.walk(func(ele *Element) bool { return ele.Attributes["id"] == sel.Value && sel.Value != "" })
	case driverk.ByName:
		nodes = d.walk(func(ele *Element) bool { return ele.Attributes["name"] == sel.Value && sel.Value != "" })
	case driverk.ByClassName:
		if driverk.BadClassName(sel.Value) {
			return nil, invalidArgument("class name %q must be a single class", sel.Value)
		}
		nodes = d.walk(func(ele *Element) bool { return hasClass(ele, sel.Value) })
	case driverk.ByTag:
		nodes = d.walk(func(ele *Element) bool { return strings.EqualFold(ele.Tag, sel.Value) })
	case driverk.ByLinkText:
		nodes = d.walk(func(ele *Element) bool {
			return strings.EqualFold(ele.Tag, "a") && strings.TrimSpace(textAt(ele, now)) == sel.Value
		})
	case driverk.ByPartialLinkText:
		nodes = d.walk(func(ele *Element) bool {
			return strings.EqualFold(ele.Tag, "a") && strings.Contains(textAt(ele, now), sel.Value)
		})
	default:
		return nil, invalidArgument("unsupported locator strategy %s", sel.By)
	}
	if err != nil {
		return nil, err
	}

	found := make([]*Element, 0, len(nodes))
	for _, n := range nodes {
		ele, ok := d.byNode[n]
		if !ok {
			return nil, invalidSelector(sel.Value, "the result is not an element", nil)
		}
		found = append(found, ele)
	}
	return found, nil
}

// walk the tree in document order collecting nodes whose element passes keep
func (d *document) walk(keep func(ele *Element) bool) []*html.Node {
	nodes := make([]*html.Node, 0)
	var visit func(n *html.Node)
	visit = func(n *html.Node) {
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			if ele, ok := d.byNode[child]; ok && keep(ele) {
				nodes = append(nodes, child)
			}
			visit(child)
		}
	}
	visit(d.root)
	return nodes
}

func queryCSS(root *html.Node, value string) ([]*html.Node, error) {
	group, err := cascadia.ParseGroup(value)
	if err != nil {
		return nil, invalidSelector(value, "invalid css selector", err)
	}
	return cascadia.QueryAll(root, group), nil
}

func queryXPath(root *html.Node, value string) ([]*html.Node, error) {
	nodes, err := htmlquery.QueryAll(root, value)
	if err != nil {
		return nil, invalidSelector(value, "invalid xpath expression", err)
	}
	return nodes, nil
}

func hasClass(ele *Element, class string) bool {
	for _, c := range strings.Fields(ele.Attributes["class"]) {
		if c == class {
			return true
		}
	}
	return false
}

func invalidSelector(value, reason string, err error) error {
	if err == nil {
		err = errors.Errorf("invalid selector %q", value)
	}
	return &driverk.ProtocolErr{
		Command: "find elements",
		Code:    "invalid selector",
		Message: reason,
		Err:     err,
	}
}

func invalidArgument(format string, args ...interface{}) error {
	return &driverk.ProtocolErr{
		Command: "find elements",
		Code:    "invalid argument",
		Message: errors.Errorf(format, args...).Error(),
	}
}
