package ast

// Visitor is called for each node during a walk. Returning false skips the
// node's children.
type Visitor func(n *Node) bool

// StackVisitor receives the node together with its ancestors, outermost first.
// The stack slice is reused between calls and must not be retained.
type StackVisitor func(n *Node, stack []*Node) bool

// Walk traverses the tree depth-first in source order.
func Walk(n *Node, visit Visitor) {
	if n == nil {
		return
	}
	if !visit(n) {
		return
	}
	for _, c := range n.Children {
		Walk(c, visit)
	}
}

// WalkStack traverses the tree depth-first, passing the ancestor chain.
func WalkStack(n *Node, visit StackVisitor) {
	stack := make([]*Node, 0, 32)
	walkStack(n, &stack, visit)
}

func walkStack(n *Node, stack *[]*Node, visit StackVisitor) {
	if n == nil {
		return
	}
	if !visit(n, *stack) {
		return
	}
	*stack = append(*stack, n)
	for _, c := range n.Children {
		walkStack(c, stack, visit)
	}
	*stack = (*stack)[:len(*stack)-1]
}

// WalkLocal traverses a function body without descending into nested
// functions, lambdas or classes. The nested definition nodes themselves
// are still visited.
func WalkLocal(n *Node, visit Visitor) {
	if n == nil {
		return
	}
	Walk(n, func(c *Node) bool {
		if !visit(c) {
			return false
		}
		if c != n && (c.Kind == KindFunction || c.Kind == KindLambda || c.Kind == KindClass) {
			return false
		}
		return true
	})
}

// Nearest returns the innermost ancestor of one of the given kinds.
func Nearest(stack []*Node, kinds ...Kind) *Node {
	for i := len(stack) - 1; i >= 0; i-- {
		for _, k := range kinds {
			if stack[i].Kind == k {
				return stack[i]
			}
		}
	}
	return nil
}

// NearestWithin is like Nearest but stops at the first function boundary.
func NearestWithin(stack []*Node, kinds ...Kind) *Node {
	for i := len(stack) - 1; i >= 0; i-- {
		for _, k := range kinds {
			if stack[i].Kind == k {
				return stack[i]
			}
		}
		if stack[i].Kind == KindFunction || stack[i].Kind == KindLambda {
			return nil
		}
	}
	return nil
}

// Collect returns all nodes of the given kind in source order.
func Collect(n *Node, k Kind) []*Node {
	var out []*Node
	Walk(n, func(c *Node) bool {
		if c.Kind == k {
			out = append(out, c)
		}
		return true
	})
	return out
}

// Contains reports whether any node in the subtree satisfies pred.
func Contains(n *Node, pred func(*Node) bool) bool {
	found := false
	Walk(n, func(c *Node) bool {
		if found {
			return false
		}
		if pred(c) {
			found = true
			return false
		}
		return true
	})
	return found
}
