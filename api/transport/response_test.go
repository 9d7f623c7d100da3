package transport

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponseShapes(t *testing.T) {
	body, err := json.Marshal(OK([]string{}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok","data":[]}`, string(body))

	failed := Fail("NOT_FOUND", "no pending operation")
	body, err = json.Marshal(failed.WithDetails(map[string]int{"pending": 0}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"error","error":{"code":"NOT_FOUND","message":"no pending operation","details":{"pending":0}}}`, string(body))

	assert.Nil(t, failed.Error.Details)
	assert.Equal(t, OK(1), OK(1).WithDetails("ignored"))
}
