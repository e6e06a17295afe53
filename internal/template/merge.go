package template

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/John-Robertt/v2clash/internal/model"
)

const DefaultSelectorName = "🔰 选择节点"

// Position says where a missing selector group is inserted.
type Position string

const (
	PositionFront Position = "front"
	PositionBack  Position = "back"
)

func ParsePosition(s string) (Position, error) {
	switch Position(strings.ToLower(strings.TrimSpace(s))) {
	case "", PositionFront:
		return PositionFront, nil
	case PositionBack:
		return PositionBack, nil
	default:
		return "", fmt.Errorf("unknown selector position %q (want front or back)", s)
	}
}

type MergeOptions struct {
	SelectorName string   // default DefaultSelectorName
	Position     Position // default PositionFront
}

// Merge replaces the document's proxy list with proxies and points the
// selector group at their names.
//
// An existing group named SelectorName keeps its place and only has its
// member list replaced. Otherwise a select group is inserted at Position.
// Other groups are not checked against the new proxy names. Anchors on the
// replaced lists are kept, so aliases of them see the new contents.
func Merge(doc *Document, proxies []model.Proxy, opt MergeOptions) error {
	if doc == nil || doc.root == nil {
		return unreadable("merge_template", "", "模板为空", nil)
	}
	selector := opt.SelectorName
	if selector == "" {
		selector = DefaultSelectorName
	}
	root := doc.mapping()

	// Validate before touching the tree so a failed merge leaves it as parsed.
	groups := resolveAlias(lookup(root, "proxy-groups"))
	if groups != nil && !isNull(groups) && groups.Kind != yaml.SequenceNode {
		return unreadable("merge_template", doc.name, "proxy-groups 必须是列表", nil)
	}

	var proxiesNode yaml.Node
	if err := proxiesNode.Encode(proxies); err != nil {
		return mergeError(doc.name, "节点列表序列化失败", err)
	}
	doc.replaceKey(root, "proxies", &proxiesNode)

	if groups == nil || isNull(groups) {
		groups = &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		setKey(root, "proxy-groups", groups)
	}

	names := model.Names(proxies)
	for _, g := range groups.Content {
		g = resolveAlias(g)
		if g == nil || g.Kind != yaml.MappingNode {
			continue
		}
		n := lookup(g, "name")
		if n == nil || n.Kind != yaml.ScalarNode || n.Value != selector {
			continue
		}
		var members yaml.Node
		if err := members.Encode(names); err != nil {
			return mergeError(doc.name, "策略组成员序列化失败", err)
		}
		doc.replaceKey(g, "proxies", &members)
		return nil
	}

	var groupNode yaml.Node
	if err := groupNode.Encode(model.Group{Name: selector, Type: "select", Members: names}); err != nil {
		return mergeError(doc.name, "策略组序列化失败", err)
	}
	if opt.Position == PositionBack {
		groups.Content = append(groups.Content, &groupNode)
	} else {
		groups.Content = append([]*yaml.Node{&groupNode}, groups.Content...)
	}
	return nil
}

func mergeError(name, message string, cause error) error {
	return &TemplateError{
		AppError: model.AppError{
			Code:    "TEMPLATE_MERGE_ERROR",
			Message: message,
			Stage:   "merge_template",
			URL:     name,
		},
		Cause: cause,
	}
}
