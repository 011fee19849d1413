package reactor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInterest_String(t *testing.T) {
	cases := map[interest]string{
		interestNone:    "none",
		interestConnect: "connect",
		interestRead:    "read",
		interestWrite:   "write",
		interest(0xff):  "invalid",
	}
	for i, want := range cases {
		assert.Equal(t, want, i.String())
	}
}
