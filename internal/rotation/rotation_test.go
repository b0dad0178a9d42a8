package rotation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecide(t *testing.T) {
	t.Run("success advances and resets counters", func(t *testing.T) {
		d := Decide(State{Index: 4, WalletCount: 5, Failures: 3, Skips: 2}, Success)
		assert.Equal(t, Decision{Next: 0, Action: Continue}, d)
	})

	t.Run("skip increments skips and resets failures", func(t *testing.T) {
		d := Decide(State{Index: 1, WalletCount: 5, Failures: 2}, InsufficientBalance)
		assert.Equal(t, Decision{Next: 2, Skips: 1, Action: Continue}, d)
	})

	t.Run("failure increments failures and resets skips", func(t *testing.T) {
		d := Decide(State{Index: 2, WalletCount: 5, Skips: 3}, Failed)
		assert.Equal(t, Decision{Next: 3, Failures: 1, Action: Continue}, d)
	})

	t.Run("out of range index is normalized", func(t *testing.T) {
		d := Decide(State{Index: 7, WalletCount: 5}, Success)
		assert.Equal(t, 3, d.Next)
	})
}

func TestDecideStopsAfterExactlyWalletCountSkips(t *testing.T) {
	s := State{Index: 0, WalletCount: 5}
	var visited []int
	for i := 0; i < 4; i++ {
		visited = append(visited, s.Index)
		d := Decide(s, InsufficientBalance)
		assert.Equal(t, Continue, d.Action, "skip %d must not stop", i+1)
		s = State{Index: d.Next, WalletCount: 5, Failures: d.Failures, Skips: d.Skips}
	}
	visited = append(visited, s.Index)

	d := Decide(s, InsufficientBalance)
	assert.Equal(t, StopAllDepleted, d.Action)
	assert.Equal(t, 5, d.Skips)
	assert.Equal(t, 4, d.Next, "index stays on the last wallet tried")
	assert.Equal(t, []int{0, 1, 2, 3, 4}, visited)
}

func TestDecideFailureThreshold(t *testing.T) {
	t.Run("four failures then success keeps running", func(t *testing.T) {
		s := State{WalletCount: 5}
		for i := 0; i < 4; i++ {
			d := Decide(s, Failed)
			assert.Equal(t, Continue, d.Action)
			s = State{Index: d.Next, WalletCount: 5, Failures: d.Failures, Skips: d.Skips}
		}
		assert.Equal(t, 4, s.Failures)

		d := Decide(s, Success)
		assert.Equal(t, Continue, d.Action)
		assert.Equal(t, 0, d.Failures)
		assert.Equal(t, 0, d.Next)
	})

	t.Run("fifth failure stops", func(t *testing.T) {
		d := Decide(State{Index: 3, WalletCount: 5, Failures: 4}, Failed)
		assert.Equal(t, StopTooManyFailures, d.Action)
		assert.Equal(t, 3, d.Next)
		assert.True(t, d.Action.IsStop())
	})

	t.Run("skip between failures resets the failure streak", func(t *testing.T) {
		s := State{WalletCount: 5, Failures: 4}
		d := Decide(s, InsufficientBalance)
		assert.Equal(t, 0, d.Failures)
		d = Decide(State{Index: d.Next, WalletCount: 5, Skips: d.Skips}, Failed)
		assert.Equal(t, Continue, d.Action)
		assert.Equal(t, 1, d.Failures)
		assert.Equal(t, 0, d.Skips)
	})
}

func TestDecideGeneralizesToOtherPoolSizes(t *testing.T) {
	d := Decide(State{Index: 0, WalletCount: 2, Skips: 1}, InsufficientBalance)
	assert.Equal(t, StopAllDepleted, d.Action)

	d = Decide(State{Index: 0, WalletCount: 1}, Success)
	assert.Equal(t, 0, d.Next)
}
