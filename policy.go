package board

import "github.com/microcosm-cc/bluemonday"

// ContentPolicy returns a user-generated-content policy that also keeps the
// attachment markup produced by Embed: media players with their sources,
// download links and the class names used for styling.
func ContentPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs(MarkerAttr).Globally()
	p.AllowElements("video", "audio", "source")
	p.AllowAttrs("controls").OnElements("video", "audio")
	p.AllowAttrs("src").OnElements("video", "audio", "source")
	p.AllowAttrs("type").OnElements("source")
	p.AllowAttrs("download").OnElements("a")
	p.AllowAttrs("class").OnElements("div", "span")
	return p
}
