package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPgWhere(t *testing.T) {
	w := newPgWhere()
	assert.Equal(t, "", w.clause())

	w.add("instrument_id", int64(7))
	w.add("resolution", "D")
	w.addOp("ts", ">=", int64(100))

	assert.Equal(t, " WHERE instrument_id = $1 AND resolution = $2 AND ts >= $3", w.clause())
	assert.Equal(t, []any{int64(7), "D", int64(100)}, w.args)
}
