package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmitInvokesSubscribersByTagAndType(t *testing.T) {
	b := New()
	var got int
	Subscribe[int](b, "tag.a", "sub1", func(v int) { got = v })
	Subscribe[string](b, "tag.a", "sub1", func(v string) { t.Fatalf("wrong-type slot invoked: %s", v) })

	Emit[int](b, "tag.a", 42)

	assert.Equal(t, 42, got)
}

func TestSubscribeReplacesExistingSlot(t *testing.T) {
	b := New()
	var calls []int
	Subscribe[int](b, "tag", "sub1", func(v int) { calls = append(calls, 1) })
	Subscribe[int](b, "tag", "sub1", func(v int) { calls = append(calls, 2) })

	Emit[int](b, "tag", 0)

	assert.Equal(t, []int{2}, calls, "second Subscribe under the same name must replace the first")
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	calls := 0
	Subscribe[int](b, "tag", "sub1", func(int) { calls++ })
	Unsubscribe[int](b, "tag", "sub1")

	Emit[int](b, "tag", 0)

	assert.Equal(t, 0, calls)
}

func TestEmitFansOutToAllNamesUnderTag(t *testing.T) {
	b := New()
	calls := 0
	Subscribe[int](b, "tag", "a", func(int) { calls++ })
	Subscribe[int](b, "tag", "b", func(int) { calls++ })

	Emit[int](b, "tag", 0)

	assert.Equal(t, 2, calls)
}

func TestEmitIgnoresOtherTags(t *testing.T) {
	b := New()
	calls := 0
	Subscribe[int](b, "tag.a", "sub1", func(int) { calls++ })

	Emit[int](b, "tag.b", 0)

	assert.Equal(t, 0, calls)
}
