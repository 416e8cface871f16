package page

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const removedElements = "script, style, noscript, iframe, object, embed, form"

var urlAttrs = map[string]bool{
	"href":       true,
	"src":        true,
	"action":     true,
	"formaction": true,
	"xlink:href": true,
}

const previewCSS = `<style>
body { margin: 0; padding: 20px; font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; max-width: 100%; overflow-x: hidden; }
img { max-width: 100%; height: auto; }
table { width: 100%; overflow-x: auto; display: block; white-space: nowrap; }
pre { overflow-x: auto; }
.highlight-citation { background-color: #fde047 !important; padding: 2px 4px !important; border-radius: 3px !important; box-shadow: 0 0 0 2px #facc15 !important; }
* { box-sizing: border-box; }
</style>`

// Sanitize removes active content from doc: scripts, embedded documents,
// forms, event handler attributes and javascript: urls.
func Sanitize(doc *goquery.Document) {
	doc.Find(removedElements).Remove()

	for _, n := range doc.Find("*").Nodes {
		kept := n.Attr[:0]
		for _, a := range n.Attr {
			if !allowedAttr(a) {
				continue
			}
			kept = append(kept, a)
		}
		n.Attr = kept
	}
}

func allowedAttr(a html.Attribute) bool {
	key := strings.ToLower(a.Key)
	if strings.HasPrefix(key, "on") {
		return false
	}
	if urlAttrs[key] {
		val := strings.ToLower(strings.Join(strings.Fields(a.Val), ""))
		if strings.HasPrefix(val, "javascript:") || strings.HasPrefix(val, "vbscript:") {
			return false
		}
	}
	return true
}

// decorate points relative links at base and adds the preview stylesheet.
func decorate(doc *goquery.Document, base string) {
	head := doc.Find("head")
	head.Find("base").Remove()
	head.PrependHtml(fmt.Sprintf(`<base href="%s">`, html.EscapeString(base)))
	head.AppendHtml(previewCSS)
}
