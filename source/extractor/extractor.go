// Package extractor turns raw page markup into cleaned body text and link
// sets. Extraction is best-effort: malformed markup never produces an error,
// only possibly empty output.
package extractor

import (
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/sitechat/sitechat/source/weburl"
)

// onclickHrefRe matches inline handlers assigning location.href or
// window.location.
var onclickHrefRe = regexp.MustCompile(`(?:location\.href|window\.location)\s*=\s*['"](.*?)['"]`)

// chromeClasses are builder-theme header/footer wrappers that carry
// navigation chrome outside the semantic nav/header/footer tags.
var chromeClasses = []string{"finaxio-builder-header", "finaxio-builder-footer"}

// chromeRoles are ARIA roles removed together with structural chrome.
var chromeRoles = []string{"navigation", "banner", "contentinfo"}

// Extract parses page markup and returns the cleaned body text plus two link
// sets resolved against pageURL and canonicalized:
//
//   - allLinks is collected before navigation chrome is pruned and is the set
//     the crawler traverses. Pages reachable only through menus stay
//     reachable.
//   - contentLinks is collected after pruning and is persisted as citation
//     metadata only.
//
// contentLinks is always a subset of allLinks; both are sorted ascending.
func Extract(markup, pageURL string) (text string, contentLinks, allLinks []string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return "", nil, nil
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		base = nil
	}

	// Script, style and noscript content must never reach text or links.
	doc.Find("script,style,noscript").Remove()

	// First pass: every link on the page, navigation included.
	all := collectLinks(doc.Selection, base)

	// Prune structural chrome before the content pass.
	doc.Find("nav,footer,header").Remove()
	for _, class := range chromeClasses {
		doc.Find("." + class).Remove()
	}
	for _, role := range chromeRoles {
		doc.Find(`[role="` + role + `"]`).Remove()
	}

	// Second pass: links surviving in the content body.
	content := collectLinks(doc.Selection, base)

	var lines []string
	for _, n := range doc.Selection.Nodes {
		collectText(n, &lines)
	}

	return strings.Join(lines, "\n"), sortedKeys(content), sortedKeys(all)
}

// collectLinks gathers link targets from anchors, inline onclick handlers and
// data-href/data-url attributes under sel, resolved and canonicalized.
func collectLinks(sel *goquery.Selection, base *url.URL) map[string]struct{} {
	links := make(map[string]struct{})

	add := func(raw string) {
		raw = strings.TrimSpace(strings.Trim(strings.TrimSpace(raw), "`"))
		if raw == "" {
			return
		}
		links[weburl.Normalize(resolve(base, raw))] = struct{}{}
	}

	sel.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		if strings.HasPrefix(href, "mailto:") ||
			strings.HasPrefix(href, "tel:") ||
			strings.HasPrefix(href, "javascript:") {
			return
		}
		add(href)
	})

	sel.Find("[onclick]").Each(func(_ int, s *goquery.Selection) {
		if m := onclickHrefRe.FindStringSubmatch(s.AttrOr("onclick", "")); m != nil {
			add(m[1])
		}
	})

	for _, attr := range []string{"data-href", "data-url"} {
		sel.Find("[" + attr + "]").Each(func(_ int, s *goquery.Selection) {
			add(s.AttrOr(attr, ""))
		})
	}

	return links
}

// resolve turns a possibly relative reference into an absolute URL against
// base. Unresolvable references pass through unchanged.
func resolve(base *url.URL, ref string) string {
	if base == nil {
		return ref
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(parsed).String()
}

// collectText appends every non-empty trimmed text node under n, one line
// per node, in document order.
func collectText(n *html.Node, lines *[]string) {
	if n.Type == html.TextNode {
		if t := strings.TrimSpace(n.Data); t != "" {
			*lines = append(*lines, t)
		}
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, lines)
	}
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
