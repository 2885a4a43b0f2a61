package kgraph

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlanCache_LRUEviction(t *testing.T) {
	c := newPlanCache(2)

	p1 := &CompiledPlan{Text: "q1"}
	p2 := &CompiledPlan{Text: "q2"}
	p3 := &CompiledPlan{Text: "q3"}

	c.put("q1", p1)
	c.put("q2", p2)
	assert.Same(t, p1, c.get("q1")) // refresh q1

	c.put("q3", p3) // evicts q2, the least recently used
	assert.Same(t, p1, c.get("q1"))
	assert.Nil(t, c.get("q2"))
	assert.Same(t, p3, c.get("q3"))
	assert.Equal(t, 2, c.len())
}

func TestPlanCache_PutSameKeyReplaces(t *testing.T) {
	c := newPlanCache(4)
	c.put("q", &CompiledPlan{Text: "old"})
	newer := &CompiledPlan{Text: "new"}
	c.put("q", newer)
	assert.Same(t, newer, c.get("q"))
	assert.Equal(t, 1, c.len())
}

func TestPlanCache_Purge(t *testing.T) {
	c := newPlanCache(8)
	for i := 0; i < 5; i++ {
		c.put(fmt.Sprintf("q%d", i), &CompiledPlan{})
	}
	assert.Equal(t, 5, c.len())
	c.purge()
	assert.Equal(t, 0, c.len())
	assert.Nil(t, c.get("q0"))
}

func TestPlanCache_DisabledIsNilSafe(t *testing.T) {
	c := newPlanCache(0)
	assert.Nil(t, c)
	c.put("q", &CompiledPlan{})
	assert.Nil(t, c.get("q"))
	assert.Equal(t, 0, c.len())
	c.purge()
}
