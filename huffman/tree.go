package huffman

import "container/heap"

type node struct {
	freq        int
	symbol      byte
	isLeaf      bool
	left, right *node
	seq         int // insertion order, used only to break heap ties deterministically
}

type nodeHeap []*node

func (h nodeHeap) Len() int { return len(h) }
func (h nodeHeap) Less(i, j int) bool {
	if h[i].freq != h[j].freq {
		return h[i].freq < h[j].freq
	}
	return h[i].seq < h[j].seq
}
func (h nodeHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *nodeHeap) Push(x interface{}) { *h = append(*h, x.(*node)) }
func (h *nodeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// buildTree constructs a Huffman tree from a byte->frequency table.
// freqs must contain at least one entry. The result is a binary tree
// whose leaves are exactly the keys of freqs; when freqs has exactly
// one entry the tree is a single leaf node.
func buildTree(freqs map[byte]int) *node {
	h := make(nodeHeap, 0, len(freqs))
	seq := 0
	for sym, f := range freqs {
		h = append(h, &node{freq: f, symbol: sym, isLeaf: true, seq: seq})
		seq++
	}
	heap.Init(&h)

	for h.Len() > 1 {
		a := heap.Pop(&h).(*node)
		b := heap.Pop(&h).(*node)
		parent := &node{freq: a.freq + b.freq, left: a, right: b, seq: seq}
		seq++
		heap.Push(&h, parent)
	}

	return h[0]
}

// codes walks root and returns the bit-string code for every leaf
// symbol. When root is itself a leaf (single-symbol message) that
// symbol's code is the empty string: every occurrence costs zero
// bits, and the decoder resolves it by starting and ending its walk
// at the root without consuming input.
func codes(root *node) map[byte]string {
	out := make(map[byte]string)
	var walk func(n *node, prefix string)
	walk = func(n *node, prefix string) {
		if n.isLeaf {
			out[n.symbol] = prefix
			return
		}
		walk(n.left, prefix+"0")
		walk(n.right, prefix+"1")
	}
	walk(root, "")
	return out
}

// serializeTree writes root in pre-order: 0 bit for an internal node
// followed by its two subtrees, 1 bit for a leaf followed by its
// 8-bit symbol.
func serializeTree(root *node, w *bitWriter) {
	if root.isLeaf {
		w.writeBit(1)
		w.writeByte8(root.symbol)
		return
	}
	w.writeBit(0)
	serializeTree(root.left, w)
	serializeTree(root.right, w)
}

// deserializeTree reads a pre-order tree back, stopping once
// wantLeaves leaves have been consumed (spec.md section 4.3).
func deserializeTree(r *bitReader, wantLeaves int) (*node, error) {
	leaves := 0
	var read func() (*node, error)
	read = func() (*node, error) {
		bit, ok := r.readBit()
		if !ok {
			return nil, ErrTruncatedTree
		}
		if bit == 1 {
			sym, ok := r.readByte8()
			if !ok {
				return nil, ErrTruncatedTree
			}
			leaves++
			return &node{isLeaf: true, symbol: sym}, nil
		}
		left, err := read()
		if err != nil {
			return nil, err
		}
		right, err := read()
		if err != nil {
			return nil, err
		}
		return &node{left: left, right: right}, nil
	}

	root, err := read()
	if err != nil {
		return nil, err
	}
	if leaves != wantLeaves {
		return nil, ErrLeafCountMismatch
	}
	return root, nil
}
