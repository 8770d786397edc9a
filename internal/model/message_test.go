package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusRank(t *testing.T) {
	assert.Equal(t, 1, StatusRank(StatusSent))
	assert.Equal(t, 2, StatusRank(StatusDelivered))
	assert.Equal(t, 3, StatusRank(StatusRead))

	// Non-reconcilable statuses sit outside the order.
	assert.Equal(t, 0, StatusRank(StatusReceived))
	assert.Equal(t, 0, StatusRank(StatusFailed))
	assert.Equal(t, 0, StatusRank("bogus"))
}

func TestStatusesBelow(t *testing.T) {
	assert.ElementsMatch(t, []string{StatusReceived}, StatusesBelow(StatusSent))
	assert.ElementsMatch(t, []string{StatusSent, StatusReceived}, StatusesBelow(StatusDelivered))
	assert.ElementsMatch(t, []string{StatusSent, StatusDelivered, StatusReceived}, StatusesBelow(StatusRead))

	assert.Nil(t, StatusesBelow(StatusReceived))
	assert.Nil(t, StatusesBelow(StatusFailed))
	assert.Nil(t, StatusesBelow(""))
}
