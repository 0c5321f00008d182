package browser

import (
	"encoding/json"

	"github.com/tidwall/gjson"
	"gitlab.com/driverk/driverk"
)

// registryScript keeps a per document map of element ids so handles can cross
// the protocol boundary. The map lives on window and dies with the document, so
// handles from a previous page (or of removed nodes) come back stale. Detached
// nodes are dropped from the map when looked up and by a sweep every 256
// registrations. Results
// are JSON strings: {"value":...}, {"stale":true} or {"error":code,"message":msg}.
const registryScript = `(function(op, args) {
  var reg = window.__driverk;
  if (!reg) {
    reg = {
      token: Math.random().toString(36).slice(2),
      seq: 0,
      byId: new Map(),
      ids: new WeakMap(),
      register: function(el) {
        var id = this.ids.get(el);
        if (!id) {
          id = this.token + ':' + (++this.seq);
          this.ids.set(el, id);
          if (this.seq % 256 === 0) { this.sweep(); }
        }
        this.byId.set(id, el);
        return id;
      },
      lookup: function(id) {
        var el = this.byId.get(id);
        if (!el) { return null; }
        if (!el.isConnected) {
          this.byId.delete(id);
          return null;
        }
        return el;
      },
      sweep: function() {
        var byId = this.byId;
        byId.forEach(function(el, id) {
          if (!el.isConnected) { byId.delete(id); }
        });
      }
    };
    Object.defineProperty(window, '__driverk', {value: reg, enumerable: false});
  }

  var out = function(v) { return JSON.stringify({value: v}); };
  var stale = JSON.stringify({stale: true});
  var displayed = function(el) {
    var style = window.getComputedStyle(el);
    if (style.visibility === 'hidden' || style.display === 'none') { return false; }
    return el.getClientRects().length > 0;
  };
  var enabled = function(el) { return !el.matches(':disabled'); };
  var text = function(el) { return el.innerText === undefined ? el.textContent : el.innerText; };

  try {
    if (op === 'find') {
      var root = document;
      if (args.scope) {
        root = reg.lookup(args.scope);
        if (!root) { return stale; }
      }
      var v = args.value, found = [];
      switch (args.by) {
        case 'css': found = root.querySelectorAll(v); break;
        case 'id': found = root.querySelectorAll('[id="' + CSS.escape(v) + '"]'); break;
        case 'name': found = root.querySelectorAll('[name="' + CSS.escape(v) + '"]'); break;
        case 'class': found = root.getElementsByClassName(v); break;
        case 'tag': found = root.getElementsByTagName(v); break;
        case 'xpath':
          var snap = document.evaluate(v, root, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
          for (var i = 0; i < snap.snapshotLength; i++) {
            var node = snap.snapshotItem(i);
            if (node.nodeType === 1) { found.push(node); }
          }
          break;
        case 'link':
        case 'partial_link':
          found = Array.prototype.filter.call(root.querySelectorAll('a'), function(a) {
            var t = text(a).trim();
            return args.by === 'link' ? t === v : t.indexOf(v) !== -1;
          });
          break;
        default:
          return JSON.stringify({error: 'invalid argument', message: 'unsupported locator strategy ' + args.by});
      }
      return out(Array.prototype.map.call(found, function(el) { return reg.register(el); }));
    }

    var el = reg.lookup(args.id);
    if (!el) { return stale; }
    switch (op) {
      case 'attribute': return out(el.getAttribute(args.name));
      case 'displayed': return out(displayed(el));
      case 'enabled': return out(enabled(el));
      case 'text': return out(text(el));
      case 'classes': return out(Array.prototype.slice.call(el.classList));
      case 'clickable':
        if (!displayed(el) || !enabled(el)) { return out(false); }
        var r = el.getBoundingClientRect();
        if (r.width <= 0 || r.height <= 0) { return out(false); }
        var hit = document.elementFromPoint(r.left + r.width / 2, r.top + r.height / 2);
        return out(hit !== null && (hit === el || el.contains(hit)));
    }
    return JSON.stringify({error: 'unknown command', message: op});
  } catch (e) {
    var code = e instanceof DOMException && e.name === 'SyntaxError' ? 'invalid selector' : 'javascript error';
    return JSON.stringify({error: code, message: String(e && e.message || e)});
  }
})`

// registryCall builds the expression evaluating op with args in the page
func registryCall(op string, args map[string]interface{}) (string, error) {
	encodedOp, err := json.Marshal(op)
	if err != nil {
		return "", err
	}
	encodedArgs, err := json.Marshal(args)
	if err != nil {
		return "", err
	}
	return registryScript + "(" + string(encodedOp) + ", " + string(encodedArgs) + ")", nil
}

// decodeResult turns a registry result into its value or one of our errors.
// id is the element the command was about, if any.
func decodeResult(command, id, raw string) (gjson.Result, error) {
	if !gjson.Valid(raw) {
		return gjson.Result{}, &driverk.ProtocolErr{Command: command, Message: "malformed registry result " + raw}
	}
	result := gjson.Parse(raw)
	if result.Get("stale").Bool() {
		return gjson.Result{}, &driverk.StaleElementErr{ID: id, Message: "element is not attached to the page document"}
	}
	if code := result.Get("error"); code.Exists() {
		return gjson.Result{}, &driverk.ProtocolErr{Command: command, Code: code.String(), Message: result.Get("message").String()}
	}
	value := result.Get("value")
	if !value.Exists() {
		return gjson.Result{}, &driverk.ProtocolErr{Command: command, Message: "registry result without value " + raw}
	}
	return value, nil
}
