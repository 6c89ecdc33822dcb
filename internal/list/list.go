// Package list implements the intrusive doubly-linked circular list shared
// by every queue in the kernel: ready lists, IPC waiter lists, timer lists,
// and the deferred-termination list.
//
// A Node is embedded by value in the owning struct (thread, timer, ...). A
// list head is itself a Node whose next/prev point to itself when empty.
// Unlinking a node always re-links it to itself, so a removed node is safe
// to re-insert into a different list.
package list

// Node is an intrusive doubly-linked circular list node. The zero value is
// not ready for use; call Init (or rely on NewHead) before use.
//
// Value optionally holds a back-pointer to the struct embedding this Node,
// mirroring container/list.Element's Value field: a node does not know
// its own container, so callers that need to recover the owner from a
// bare *Node (e.g. while walking a list of waiters) stash it here once,
// at construction, rather than relying on unsafe pointer arithmetic.
type Node struct {
	next, prev *Node
	Value      any
}

// Init makes n a single-element circular list (a valid empty head).
func (n *Node) Init() *Node {
	n.next = n
	n.prev = n
	return n
}

// NewHead returns an initialized empty list head.
func NewHead() *Node {
	return new(Node).Init()
}

// Empty reports whether n (used as a head) has no other members.
func (n *Node) Empty() bool {
	return n.next == n
}

// Linked reports whether n is currently part of a multi-node ring, i.e. has
// been inserted into some list and not yet unlinked.
func (n *Node) Linked() bool {
	return n.next != nil && n.next != n
}

// Next returns the following node in the ring.
func (n *Node) Next() *Node { return n.next }

// Prev returns the preceding node in the ring.
func (n *Node) Prev() *Node { return n.prev }

// InsertAfter splices n in immediately after at.
func (n *Node) InsertAfter(at *Node) {
	n.prev = at
	n.next = at.next
	at.next.prev = n
	at.next = n
}

// InsertBefore splices n in immediately before at.
func (n *Node) InsertBefore(at *Node) {
	n.next = at
	n.prev = at.prev
	at.prev.next = n
	at.prev = n
}

// PushBack inserts n at the tail of the list rooted at head (head.prev).
func (n *Node) PushBack(head *Node) {
	n.InsertBefore(head)
}

// PushFront inserts n at the head of the list rooted at head (head.next).
func (n *Node) PushFront(head *Node) {
	n.InsertAfter(head)
}

// Remove unlinks n from whatever ring it is in and re-initializes it as a
// standalone (self-linked) node. Safe to call on an already-standalone node.
func (n *Node) Remove() {
	if n.next == nil {
		n.Init()
		return
	}
	n.prev.next = n.next
	n.next.prev = n.prev
	n.Init()
}

// Len walks the ring rooted at head and counts the non-head members. O(n).
func (n *Node) Len() int {
	count := 0
	for cur := n.next; cur != nil && cur != n; cur = cur.next {
		count++
	}
	return count
}

// Front returns the first member of the list rooted at head, or nil if
// empty.
func (n *Node) Front() *Node {
	if n.Empty() {
		return nil
	}
	return n.next
}

// Back returns the last member of the list rooted at head, or nil if empty.
func (n *Node) Back() *Node {
	if n.Empty() {
		return nil
	}
	return n.prev
}

// Do calls fn for every member of the list rooted at head, in order, from
// front to back. fn must not mutate the list it is iterating.
func (n *Node) Do(fn func(*Node)) {
	for cur := n.next; cur != nil && cur != n; cur = cur.next {
		fn(cur)
	}
}
