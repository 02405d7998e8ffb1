package board

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// MarkerAttr tags embedded attachments in draft content with their attachment id.
const MarkerAttr = "data-attachment-id"

// bodyContext is the parsing context for draft content fragments.
var bodyContext = &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}

// RewriteContent replaces attachment references in an HTML fragment.
//
// Elements that load or link a resource (img, source, video, audio, embed,
// track via src; a via href) are rewritten when they carry a MarkerAttr whose
// id is in byID, or when their reference is a key of byRef. The marker is
// removed from rewritten elements. Every occurrence is rewritten.
// Content without any matching element is returned unchanged.
func RewriteContent(content string, byRef, byID map[string]string) (string, error) {
	if content == "" || (len(byRef) == 0 && len(byID) == 0) {
		return content, nil
	}

	nodes, err := html.ParseFragment(strings.NewReader(content), bodyContext)
	if err != nil {
		return "", err
	}

	changed := false
	for _, n := range nodes {
		if rewriteTree(n, byRef, byID) {
			changed = true
		}
	}
	if !changed {
		return content, nil
	}

	var sb strings.Builder
	sb.Grow(len(content))
	for _, n := range nodes {
		if err := html.Render(&sb, n); err != nil {
			return "", err
		}
	}
	return sb.String(), nil
}

func rewriteTree(n *html.Node, byRef, byID map[string]string) bool {
	changed := false
	if n.Type == html.ElementNode {
		if key := referenceAttr(n.DataAtom); key != "" {
			changed = rewriteElement(n, key, byRef, byID)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if rewriteTree(c, byRef, byID) {
			changed = true
		}
	}
	return changed
}

// referenceAttr returns the attribute holding the element's resource reference.
func referenceAttr(a atom.Atom) string {
	switch a {
	case atom.Img, atom.Source, atom.Video, atom.Audio, atom.Embed, atom.Track:
		return "src"
	case atom.A:
		return "href"
	}
	return ""
}

func rewriteElement(n *html.Node, key string, byRef, byID map[string]string) bool {
	marker, ref := -1, -1
	for i, a := range n.Attr {
		if a.Namespace != "" {
			continue
		}
		switch a.Key {
		case MarkerAttr:
			marker = i
		case key:
			ref = i
		}
	}

	var url string
	if marker >= 0 {
		url = byID[n.Attr[marker].Val]
	}
	if url == "" && ref >= 0 {
		url = byRef[n.Attr[ref].Val]
	}
	if url == "" {
		return false
	}

	if ref >= 0 {
		n.Attr[ref].Val = url
	} else {
		n.Attr = append(n.Attr, html.Attribute{Key: key, Val: url})
	}
	if marker >= 0 {
		n.Attr = append(n.Attr[:marker], n.Attr[marker+1:]...)
	}
	return true
}

// Embed returns the markup the composition surface inserts for a staged attachment.
// Images become <img>, video and audio become players with a <source>, and other
// files become a download link showing name and size. The element holding the
// preview reference carries MarkerAttr so Commit can rewrite it.
func Embed(a Attachment) string {
	marker := html.Attribute{Key: MarkerAttr, Val: a.ID}

	var root *html.Node
	switch a.Kind {
	case KindImage:
		root = element(atom.Img,
			html.Attribute{Key: "src", Val: a.PreviewRef},
			html.Attribute{Key: "alt", Val: a.Name},
			marker,
		)
	case KindVideo, KindAudio:
		player := atom.Video
		if a.Kind == KindAudio {
			player = atom.Audio
		}
		root = element(atom.Div, html.Attribute{Key: "class", Val: "my-4"})
		media := element(player, html.Attribute{Key: "controls"})
		media.AppendChild(element(atom.Source,
			html.Attribute{Key: "src", Val: a.PreviewRef},
			html.Attribute{Key: "type", Val: a.MIMEType},
			marker,
		))
		root.AppendChild(media)
	default:
		root = element(atom.Div, html.Attribute{Key: "class", Val: "attachment"})
		link := element(atom.A,
			html.Attribute{Key: "href", Val: a.PreviewRef},
			html.Attribute{Key: "download", Val: a.Name},
			marker,
		)
		name := element(atom.Span, html.Attribute{Key: "class", Val: "attachment-name"})
		name.AppendChild(&html.Node{Type: html.TextNode, Data: a.Name})
		size := element(atom.Span, html.Attribute{Key: "class", Val: "attachment-size"})
		size.AppendChild(&html.Node{Type: html.TextNode, Data: FormatSize(a.Size)})
		link.AppendChild(name)
		link.AppendChild(size)
		root.AppendChild(link)
	}

	var sb strings.Builder
	_ = html.Render(&sb, root)
	return sb.String()
}

func element(a atom.Atom, attrs ...html.Attribute) *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String(), Attr: attrs}
}
