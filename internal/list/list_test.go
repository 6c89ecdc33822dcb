package list

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type item struct {
	node Node
	val  int
}

func TestEmptyHead(t *testing.T) {
	h := NewHead()
	require.True(t, h.Empty())
	require.Equal(t, 0, h.Len())
	require.Nil(t, h.Front())
	require.Nil(t, h.Back())
}

func TestPushBackOrder(t *testing.T) {
	h := NewHead()
	a := &item{val: 1}
	b := &item{val: 2}
	c := &item{val: 3}
	nodeToItem := map[*Node]*item{&a.node: a, &b.node: b, &c.node: c}
	a.node.PushBack(h)
	b.node.PushBack(h)
	c.node.PushBack(h)

	require.Equal(t, 3, h.Len())

	var got []int
	h.Do(func(n *Node) {
		got = append(got, nodeToItem[n].val)
	})
	require.Equal(t, []int{1, 2, 3}, got)
}

func TestRemoveReinsert(t *testing.T) {
	h1 := NewHead()
	h2 := NewHead()
	a := &item{val: 1}
	b := &item{val: 2}
	a.node.PushBack(h1)
	b.node.PushBack(h1)
	require.Equal(t, 2, h1.Len())

	a.node.Remove()
	require.Equal(t, 1, h1.Len())
	require.False(t, a.node.Linked())

	a.node.PushBack(h2)
	require.Equal(t, 1, h2.Len())
	require.Equal(t, 1, h1.Len())
}

func TestInsertBeforeAfter(t *testing.T) {
	h := NewHead()
	a := &item{val: 1}
	b := &item{val: 2}
	c := &item{val: 3}

	b.node.PushBack(h)
	a.node.InsertBefore(&b.node)
	c.node.InsertAfter(&b.node)

	require.Equal(t, h.Front(), &a.node)
	require.Equal(t, h.Back(), &c.node)
}

func TestFrontBack(t *testing.T) {
	h := NewHead()
	a := &item{val: 1}
	b := &item{val: 2}
	a.node.PushBack(h)
	b.node.PushBack(h)
	require.Equal(t, &a.node, h.Front())
	require.Equal(t, &b.node, h.Back())
}
