package tree

type WalkStatus int

const (
	// WalkStop stops walking.
	WalkStop WalkStatus = iota + 1

	// WalkSkipChildren skips the children of the current node.
	WalkSkipChildren

	// WalkContinue continues walking.
	WalkContinue
)

// Walker is called for every node twice, entering and leaving it.
type Walker func(n Node, entering bool) (WalkStatus, error)

// Walk walks the subtree rooted at n in document order.
func Walk(n Node, walker Walker) error {
	_, err := walkHelper(n, walker)
	return err
}

func walkHelper(n Node, walker Walker) (WalkStatus, error) {
	status, err := walker(n, true)
	if err != nil || status == WalkStop {
		return status, err
	}
	if status != WalkSkipChildren {
		for _, c := range n.base().children {
			if st, err := walkHelper(c, walker); err != nil || st == WalkStop {
				return WalkStop, err
			}
		}
	}
	if status, err := walker(n, false); err != nil || status == WalkStop {
		return WalkStop, err
	}
	return WalkContinue, nil
}

// Find returns the first node in the subtree of n, in document order,
// for which fn returns true.
func Find(n Node, fn func(Node) bool) Node {
	var result Node
	_ = Walk(n, func(c Node, entering bool) (WalkStatus, error) {
		if entering && fn(c) {
			result = c
			return WalkStop, nil
		}
		return WalkContinue, nil
	})
	return result
}

// FindAll returns every node in the subtree of n for which fn returns true.
func FindAll(n Node, fn func(Node) bool) []Node {
	var result []Node
	_ = Walk(n, func(c Node, entering bool) (WalkStatus, error) {
		if entering && fn(c) {
			result = append(result, c)
		}
		return WalkContinue, nil
	})
	return result
}

// Position reports the document-order position of every node in the
// subtree of n, keyed by node key.
func Position(n Node) map[string]int {
	result := make(map[string]int)
	_ = Walk(n, func(c Node, entering bool) (WalkStatus, error) {
		if entering {
			result[c.Key()] = len(result)
		}
		return WalkContinue, nil
	})
	return result
}
