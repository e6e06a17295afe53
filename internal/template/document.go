// Package template loads a Clash base configuration and merges a batch of
// proxies into it. Documents are yaml.v3 node trees so keys the merge does
// not touch keep their order, comments and style.
package template

import (
	"bytes"
	"errors"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/John-Robertt/v2clash/internal/model"
)

// Document is one parsed template. It is owned by a single batch and is
// mutated in place by Merge.
type Document struct {
	name    string
	root    *yaml.Node
	newline string
}

// Parse reads a single YAML document whose top level is a mapping. name is
// only used in error payloads (a path or URL).
func Parse(name string, text []byte) (*Document, error) {
	s := strings.TrimPrefix(string(text), "\ufeff")
	if strings.TrimSpace(s) == "" {
		return nil, unreadable("load_template", name, "模板内容为空", nil)
	}

	dec := yaml.NewDecoder(strings.NewReader(s))
	var root yaml.Node
	if err := dec.Decode(&root); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, unreadable("load_template", name, "模板内容为空", nil)
		}
		return nil, unreadable("load_template", name, "模板 YAML 解析失败", err)
	}
	var extra yaml.Node
	if err := dec.Decode(&extra); err == nil {
		return nil, unreadable("load_template", name, "模板只能包含一个 YAML 文档", nil)
	} else if !errors.Is(err, io.EOF) {
		return nil, unreadable("load_template", name, "模板 YAML 解析失败", err)
	}

	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 || root.Content[0].Kind != yaml.MappingNode {
		return nil, unreadable("load_template", name, "模板顶层必须是映射", nil)
	}
	return &Document{name: name, root: &root, newline: detectNewline(s)}, nil
}

func (d *Document) Name() string { return d.name }

// Encode serializes the document with 2-space indentation, keeping the
// template's newline style.
func (d *Document) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(d.root); err != nil {
		return nil, encodeError(d.name, err)
	}
	if err := enc.Close(); err != nil {
		return nil, encodeError(d.name, err)
	}
	out := buf.Bytes()
	if d.newline == "\r\n" {
		out = bytes.ReplaceAll(out, []byte("\n"), []byte("\r\n"))
	}
	return out, nil
}

// Decode unmarshals the current tree into v.
func (d *Document) Decode(v any) error {
	return d.root.Decode(v)
}

func (d *Document) mapping() *yaml.Node {
	return d.root.Content[0]
}

func encodeError(name string, err error) error {
	return &TemplateError{
		AppError: model.AppError{
			Code:    "TEMPLATE_ENCODE_ERROR",
			Message: "配置序列化失败",
			Stage:   "encode_template",
			URL:     name,
		},
		Cause: err,
	}
}

// lookup returns the value node for key in a mapping node, or nil.
func lookup(m *yaml.Node, key string) *yaml.Node {
	if i := keyIndex(m, key); i >= 0 {
		return m.Content[i+1]
	}
	return nil
}

func keyIndex(m *yaml.Node, key string) int {
	for i := 0; i+1 < len(m.Content); i += 2 {
		k := m.Content[i]
		if k.Kind == yaml.ScalarNode && k.Value == key {
			return i
		}
	}
	return -1
}

// setKey replaces the value for key, or appends the pair when key is absent.
// setKey sets or appends key and returns the replaced value, if any.
func setKey(m *yaml.Node, key string, value *yaml.Node) *yaml.Node {
	if i := keyIndex(m, key); i >= 0 {
		old := m.Content[i+1]
		m.Content[i+1] = value
		return old
	}
	m.Content = append(m.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		value,
	)
	return nil
}

// replaceKey is setKey for a document tree. An anchor on the replaced value
// moves to the new one and its aliases are repointed, so they follow the
// new contents instead of dangling.
func (d *Document) replaceKey(m *yaml.Node, key string, value *yaml.Node) {
	old := setKey(m, key, value)
	if old == nil || old.Anchor == "" || value.Anchor != "" {
		return
	}
	value.Anchor = old.Anchor
	relinkAliases(d.root, old, value)
}

// relinkAliases points every alias of from at to.
func relinkAliases(n, from, to *yaml.Node) {
	if n == nil {
		return
	}
	if n.Kind == yaml.AliasNode && n.Alias == from {
		n.Alias = to
		return
	}
	for _, c := range n.Content {
		relinkAliases(c, from, to)
	}
}

func resolveAlias(n *yaml.Node) *yaml.Node {
	for n != nil && n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	return n
}

func isNull(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && (n.Tag == "!!null" || n.Value == "")
}

func detectNewline(s string) string {
	if strings.Contains(s, "\r\n") {
		return "\r\n"
	}
	return "\n"
}
