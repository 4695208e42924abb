package tree

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Node is one ply in the move-prefix trie. The root has no token of its own.
// Count is the number of inserted paths passing through the node.
type Node struct {
	children map[string]*Node
	count    int
}

// New returns an empty root.
func New() *Node {
	return &Node{}
}

// Insert walks path from n, creating missing children, and increments the
// pass count of every node on the way, n included.
func (n *Node) Insert(path []string) {
	cur := n
	cur.count++
	for _, tok := range path {
		child, ok := cur.children[tok]
		if !ok {
			if cur.children == nil {
				cur.children = make(map[string]*Node)
			}
			child = &Node{}
			cur.children[tok] = child
		}
		child.count++
		cur = child
	}
}

// Child returns the child reached by tok, or nil.
func (n *Node) Child(tok string) *Node {
	if n == nil {
		return nil
	}
	return n.children[tok]
}

// Find walks path and returns the node at its end, or nil if any ply is missing.
func (n *Node) Find(path []string) *Node {
	cur := n
	for _, tok := range path {
		cur = cur.Child(tok)
		if cur == nil {
			return nil
		}
	}
	return cur
}

// Contains reports whether path exists in the trie.
func (n *Node) Contains(path []string) bool {
	return n.Find(path) != nil
}

// Count is the number of inserted paths that pass through n.
func (n *Node) Count() int {
	if n == nil {
		return 0
	}
	return n.count
}

// Len is the number of direct children.
func (n *Node) Len() int {
	return len(n.children)
}

// IsLeaf reports whether n has no children.
func (n *Node) IsLeaf() bool {
	return len(n.children) == 0
}

// Tokens returns the child tokens in sorted order.
func (n *Node) Tokens() []string {
	out := make([]string, 0, len(n.children))
	for tok := range n.children {
		out = append(out, tok)
	}
	sort.Strings(out)
	return out
}

// Size returns the number of nodes below n.
func (n *Node) Size() int {
	total := 0
	for _, c := range n.children {
		total += 1 + c.Size()
	}
	return total
}

// Paths returns every root-to-leaf path under n in sorted token order,
// each prefixed by prefix.
func (n *Node) Paths(prefix []string) [][]string {
	var out [][]string
	var walk func(node *Node, path []string)
	walk = func(node *Node, path []string) {
		if node.IsLeaf() {
			p := make([]string, len(path))
			copy(p, path)
			out = append(out, p)
			return
		}
		for _, tok := range node.Tokens() {
			walk(node.children[tok], append(path, tok))
		}
	}
	walk(n, append([]string(nil), prefix...))
	return out
}

// MarshalJSON writes the trie as nested objects keyed by token, children in
// sorted order so output does not depend on insertion order.
func (n *Node) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := n.writeJSON(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (n *Node) writeJSON(buf *bytes.Buffer) error {
	buf.WriteByte('{')
	for i, tok := range n.Tokens() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(tok)
		if err != nil {
			return err
		}
		buf.Write(key)
		buf.WriteByte(':')
		if err := n.children[tok].writeJSON(buf); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

// UnmarshalJSON rebuilds a trie from MarshalJSON output. Pass counts are
// recomputed by treating every leaf as the end of one inserted path.
func (n *Node) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode tree node: %w", err)
	}
	n.children = nil
	n.count = 0
	if len(raw) == 0 {
		return nil
	}
	n.children = make(map[string]*Node, len(raw))
	for tok, body := range raw {
		child := &Node{}
		if err := child.UnmarshalJSON(body); err != nil {
			return err
		}
		if child.IsLeaf() {
			child.count = 1
		}
		n.children[tok] = child
		n.count += child.count
	}
	return nil
}
