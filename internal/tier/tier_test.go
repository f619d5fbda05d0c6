package tier

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLimit(t *testing.T) {
	t.Parallel()

	assert.EqualValues(t, 3, Limit(false), "free accounts are capped at 3 records")
	assert.EqualValues(t, Unlimited, Limit(true), "paid accounts are unbounded")
}
