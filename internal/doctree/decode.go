package doctree

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"
)

// Format identifies the surface syntax of a document.
type Format uint8

const (
	FormatXML Format = iota + 1
	FormatYAML
)

func (f Format) String() string {
	switch f {
	case FormatXML:
		return "xml"
	case FormatYAML:
		return "yaml"
	default:
		return "unknown"
	}
}

// FormatOf picks the decoder for a document. YAML extensions are trusted;
// anything else is sniffed, since catalog files use several extensions
// (.xosc, .cat, .xml) for the same XML content.
func FormatOf(path string, data []byte) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	}
	trimmed := bytes.TrimLeft(data, " \t\r\n\ufeff")
	if len(trimmed) > 0 && trimmed[0] == '<' {
		return FormatXML
	}
	return FormatYAML
}

// Decode decodes data into a tree using the format implied by path.
func Decode(path string, data []byte) (*Node, error) {
	switch FormatOf(path, data) {
	case FormatYAML:
		return DecodeYAML(data)
	default:
		return DecodeXML(bytes.NewReader(data))
	}
}

// DecodeXML decodes an XML document. Namespaces are dropped: elements and
// attributes are keyed by local name, and namespaced attributes
// (xmlns, xsi:*) are skipped.
func DecodeXML(r io.Reader) (*Node, error) {
	dec := xml.NewDecoder(r)
	dec.Strict = true

	var root *Node
	var stack []*Node
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decoding XML: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			line, _ := dec.InputPos()
			n := &Node{Tag: t.Name.Local, Line: line}
			for _, a := range t.Attr {
				if a.Name.Space != "" || a.Name.Local == "xmlns" {
					continue
				}
				n.Attrs = append(n.Attrs, Attr{Name: a.Name.Local, Value: a.Value})
			}
			if len(stack) == 0 {
				if root != nil {
					return nil, fmt.Errorf("decoding XML: multiple root elements")
				}
				root = n
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, n)
			}
			stack = append(stack, n)

		case xml.EndElement:
			top := stack[len(stack)-1]
			top.Text = strings.TrimSpace(top.Text)
			stack = stack[:len(stack)-1]

		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].Text += string(t)
			}
		}
	}

	if root == nil {
		return nil, fmt.Errorf("decoding XML: document has no root element")
	}
	return root, nil
}

// DecodeYAML decodes a YAML document. The document must be a mapping with
// exactly one key, the root element. Inside an element, a scalar value is an
// attribute, a mapping is a single child element and a sequence of mappings
// is a run of child elements sharing the key as tag.
func DecodeYAML(data []byte) (*Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding YAML: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, fmt.Errorf("decoding YAML: empty document")
	}

	top := doc.Content[0]
	if top.Kind != yaml.MappingNode || len(top.Content) != 2 {
		return nil, fmt.Errorf("decoding YAML: document must be a mapping with a single root element")
	}
	return yamlElement(top.Content[0].Value, top.Content[1])
}

func yamlElement(tag string, v *yaml.Node) (*Node, error) {
	if v.Kind == yaml.AliasNode {
		v = v.Alias
	}
	n := &Node{Tag: tag, Line: v.Line}

	switch v.Kind {
	case yaml.MappingNode:
	case yaml.ScalarNode:
		// "Element: ~" is an empty element; any other scalar is its text.
		if v.Tag != "!!null" {
			n.Text = v.Value
		}
		return n, nil
	default:
		return nil, fmt.Errorf("decoding YAML: line %d: element %q must be a mapping", v.Line, tag)
	}

	for i := 0; i+1 < len(v.Content); i += 2 {
		key := v.Content[i].Value
		val := v.Content[i+1]
		if val.Kind == yaml.AliasNode {
			val = val.Alias
		}

		switch val.Kind {
		case yaml.ScalarNode:
			value := val.Value
			if val.Tag == "!!null" {
				value = ""
			}
			n.Attrs = append(n.Attrs, Attr{Name: key, Value: value})

		case yaml.MappingNode:
			child, err := yamlElement(key, val)
			if err != nil {
				return nil, err
			}
			n.Children = append(n.Children, child)

		case yaml.SequenceNode:
			for _, item := range val.Content {
				if item.Kind != yaml.MappingNode && item.Kind != yaml.AliasNode {
					return nil, fmt.Errorf("decoding YAML: line %d: items of %q must be mappings", item.Line, key)
				}
				child, err := yamlElement(key, item)
				if err != nil {
					return nil, err
				}
				n.Children = append(n.Children, child)
			}

		default:
			return nil, fmt.Errorf("decoding YAML: line %d: unsupported value for %q", val.Line, key)
		}
	}
	return n, nil
}
