package dashboard

import (
	"html"
	"io"
	"strings"
)

// Node is one element of an immutable render tree. Trees are built by
// pure functions over report data and serialized to HTML in a single
// separate step, which keeps the transformation testable on its own.
type Node struct {
	// Tag is the element name. A node with an empty tag is a text node.
	Tag      string
	Text     string
	Attrs    []Attr
	Children []*Node
}

// Attr is a single element attribute.
type Attr struct {
	Key   string
	Value string
}

// Element creates an element node with the given children.
func Element(tag string, children ...*Node) *Node {
	return &Node{Tag: tag, Children: children}
}

// Text creates a text node. The text is escaped on serialization.
func Text(text string) *Node {
	return &Node{Text: text}
}

// WithAttr returns the node with an attribute appended.
func (n *Node) WithAttr(key, value string) *Node {
	n.Attrs = append(n.Attrs, Attr{Key: key, Value: value})

	return n
}

// Append adds children to the node and returns it.
func (n *Node) Append(children ...*Node) *Node {
	n.Children = append(n.Children, children...)

	return n
}

// voidTags are elements serialized without a closing tag.
var voidTags = map[string]struct{}{
	"br": {}, "hr": {}, "img": {}, "link": {}, "meta": {},
}

// WriteHTML serializes the tree rooted at n to w.
func (n *Node) WriteHTML(w io.Writer) error {
	var sb strings.Builder

	n.writeTo(&sb)

	_, err := io.WriteString(w, sb.String())

	return err
}

// HTML returns the serialized tree as a string.
func (n *Node) HTML() string {
	var sb strings.Builder

	n.writeTo(&sb)

	return sb.String()
}

func (n *Node) writeTo(sb *strings.Builder) {
	if n == nil {
		return
	}

	if n.Tag == "" {
		sb.WriteString(html.EscapeString(n.Text))

		return
	}

	sb.WriteByte('<')
	sb.WriteString(n.Tag)

	for _, attr := range n.Attrs {
		sb.WriteByte(' ')
		sb.WriteString(attr.Key)
		sb.WriteString(`="`)
		sb.WriteString(html.EscapeString(attr.Value))
		sb.WriteByte('"')
	}

	sb.WriteByte('>')

	if _, void := voidTags[n.Tag]; void {
		return
	}

	for _, child := range n.Children {
		child.writeTo(sb)
	}

	sb.WriteString("</")
	sb.WriteString(n.Tag)
	sb.WriteByte('>')
}
