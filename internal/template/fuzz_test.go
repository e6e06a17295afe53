package template

import "testing"

func FuzzMerge(f *testing.F) {
	f.Add(baseTemplate, "PICK", false)
	f.Add("proxies:\nproxy-groups:\n", "", true)
	f.Add("proxy-groups:\n  - &g {name: x, proxies: [a]}\n  - *g\n", "x", false)
	f.Add("a: b\r\nproxies: 1\r\n", "🔰 选择节点", true)

	f.Fuzz(func(t *testing.T, text, selector string, back bool) {
		doc, err := Parse("fuzz.yaml", []byte(text))
		if err != nil {
			return
		}
		pos := PositionFront
		if back {
			pos = PositionBack
		}
		if err := Merge(doc, sampleProxies(), MergeOptions{SelectorName: selector, Position: pos}); err != nil {
			return
		}
		if _, err := doc.Encode(); err != nil {
			t.Fatalf("encode after merge: %v", err)
		}
	})
}
