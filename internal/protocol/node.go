package protocol

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/energizer-project/mcwatch/internal/status"
)

// Node is an optional view into a decoded JSON document. Lookups on a missing
// or mistyped value yield an absent Node instead of failing.
type Node struct {
	v       interface{}
	present bool
}

// ParseNode decodes text into a Node tree.
func ParseNode(text string) (Node, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return Node{}, status.NewError(status.KindFormat, "parse status json", fmt.Errorf("failed to decode JSON: %w", err))
	}
	return Node{v: v, present: true}, nil
}

// Exists reports whether the node holds a non-null value.
func (n Node) Exists() bool {
	return n.present && n.v != nil
}

// Get returns the named member of an object node.
func (n Node) Get(key string) Node {
	obj, ok := n.v.(map[string]interface{})
	if !ok {
		return Node{}
	}
	v, ok := obj[key]
	return Node{v: v, present: ok}
}

// Path follows nested object members.
func (n Node) Path(keys ...string) Node {
	cur := n
	for _, k := range keys {
		cur = cur.Get(k)
	}
	return cur
}

// IsObject reports whether the node is a JSON object.
func (n Node) IsObject() bool {
	_, ok := n.v.(map[string]interface{})
	return ok
}

// AsString returns the node's string value.
func (n Node) AsString() (string, bool) {
	s, ok := n.v.(string)
	return s, ok
}

// AsInt returns the node's value as an int when it is an integral number.
func (n Node) AsInt() (int, bool) {
	num, ok := n.v.(json.Number)
	if !ok {
		return 0, false
	}
	if i, err := num.Int64(); err == nil {
		return int(i), true
	}
	f, err := num.Float64()
	if err != nil || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

// AsArray returns the node's elements.
func (n Node) AsArray() ([]Node, bool) {
	arr, ok := n.v.([]interface{})
	if !ok {
		return nil, false
	}
	nodes := make([]Node, len(arr))
	for i, v := range arr {
		nodes[i] = Node{v: v, present: true}
	}
	return nodes, true
}
