package console

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

// pageIndex collects row ids and fragment links of a rendered page
type pageIndex struct {
	rowIDs map[string]bool
	links  []string
	alerts []string
	modal  bool
}

func indexPage(t *testing.T, page string) pageIndex {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(page))
	require.NoError(t, err)

	idx := pageIndex{rowIDs: map[string]bool{}}
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "tr":
				if id := attr(n, "id"); id != "" {
					idx.rowIDs[id] = true
				}
			case "a":
				if href := attr(n, "href"); strings.HasPrefix(href, "#") {
					idx.links = append(idx.links, strings.TrimPrefix(href, "#"))
				}
			case "div":
				if strings.Contains(attr(n, "class"), "alert") {
					idx.alerts = append(idx.alerts, attr(n, "class")+"|"+textOf(n))
				}
				if attr(n, "id") == "deleteConfirmationModal" {
					idx.modal = true
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return idx
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(b.String())
}

func renderFixture(t *testing.T) (string, *View) {
	t.Helper()
	fb := &fakeBackend{collections: fixture()}
	loader, view := newTestLoader(fb)
	require.NoError(t, loader.Reload(context.Background()))

	var buf bytes.Buffer
	require.NoError(t, RenderPage(&buf, "Email Console", view.Snapshot()))
	return buf.String(), view
}

func TestRenderPage_LinkSymmetry(t *testing.T) {
	page, _ := renderFixture(t)
	idx := indexPage(t, page)

	assert.Equal(t, map[string]bool{
		"parsed-email-1": true, "parsed-email-2": true,
		"raw-email-10": true, "raw-email-11": true,
	}, idx.rowIDs)

	require.NotEmpty(t, idx.links)
	for _, target := range idx.links {
		assert.True(t, idx.rowIDs[target], "link #%s has no row", target)
	}
	assert.ElementsMatch(t, []string{"raw-email-10", "parsed-email-1"}, idx.links)
}

func TestRenderPage_EscapesContent(t *testing.T) {
	fb := &fakeBackend{collections: fixture()}
	fb.collections.ParsedEmails[0].Subject = `<script>alert("x")</script>`
	loader, view := newTestLoader(fb)
	require.NoError(t, loader.Reload(context.Background()))

	var buf bytes.Buffer
	require.NoError(t, RenderPage(&buf, "Email Console", view.Snapshot()))
	assert.NotContains(t, buf.String(), `<script>alert`)
	assert.Contains(t, buf.String(), `&lt;script&gt;`)
}

func TestRenderPage_NoticeAndModal(t *testing.T) {
	_, view := renderFixture(t)
	view.SetNotice(LevelWarning, "Please select a file to upload.")
	view.openConfirmation(1)

	var buf bytes.Buffer
	require.NoError(t, RenderPage(&buf, "Email Console", view.Snapshot()))
	idx := indexPage(t, buf.String())

	assert.Equal(t, []string{"alert alert-warning|Please select a file to upload."}, idx.alerts)
	assert.True(t, idx.modal)
	assert.Contains(t, buf.String(), `action="/emails/delete/confirm"`)
	assert.Contains(t, buf.String(), `action="/emails/1/delete"`)
}

func TestRenderPage_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderPage(&buf, "Email Console", NewView().Snapshot()))
	idx := indexPage(t, buf.String())

	assert.Empty(t, idx.rowIDs)
	assert.Empty(t, idx.alerts)
	assert.False(t, idx.modal)
}

func TestRenderTerminal(t *testing.T) {
	_, view := renderFixture(t)
	view.SetNotice(LevelSuccess, "Email deleted successfully!")

	var buf bytes.Buffer
	require.NoError(t, RenderTerminal(&buf, view.Snapshot()))
	out := buf.String()

	assert.Contains(t, out, "Email deleted successfully!")
	assert.Contains(t, out, "Parsed Emails")
	assert.Contains(t, out, "Raw Emails")
	assert.Contains(t, out, "#raw-email-10")
	assert.Contains(t, out, "#parsed-email-1")
	assert.Contains(t, out, "delete 2")
	assert.Contains(t, out, Placeholder)
}
