// Package output defines the immutable representation of a single piece
// of kernel output. All packages consume these as value types.
package output

// Kind classifies a single output item.
type Kind string

const (
	KindStdout       Kind = "stdout"
	KindStderr       Kind = "stderr"
	KindError        Kind = "error"
	KindDisplayHTML  Kind = "display_html"
	KindDisplayImage Kind = "display_image"
	KindDisplaySVG   Kind = "display_svg"
)

// ShortContentCap is the maximum length of Item.ShortContent.
const ShortContentCap = 4096

// Item is one piece of output produced by a kernel run.
// Items are value types: once appended to a cell they are never mutated.
type Item struct {
	Kind         Kind              `json:"kind"`
	Content      string            `json:"content"`
	ShortContent string            `json:"shortContent,omitempty"`
	Attrs        map[string]string `json:"attrs,omitempty"`
}

// New builds an Item with ShortContent derived from content.
func New(kind Kind, content string) Item {
	return Item{
		Kind:         kind,
		Content:      content,
		ShortContent: Truncate(content),
	}
}

// NewWithAttrs builds an Item carrying opaque metadata (e.g. mime info).
func NewWithAttrs(kind Kind, content string, attrs map[string]string) Item {
	item := New(kind, content)
	item.Attrs = attrs
	return item
}

// Truncate produces a bounded preview of content. Content under the cap
// is returned unchanged; anything longer becomes a head+tail sample with
// a marker in between, never exceeding ShortContentCap.
func Truncate(content string) string {
	if len(content) <= ShortContentCap {
		return content
	}

	const marker = "\n...[truncated]...\n"
	keep := ShortContentCap - len(marker)
	head := keep / 2
	tail := keep - head

	return content[:head] + marker + content[len(content)-tail:]
}
