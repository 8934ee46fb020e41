package identity

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeader(t *testing.T) {
	header, err := Header("12345")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(header)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"identity":{"account_number":"12345","user":{"is_org_admin":true},"internal":{"org_id":"000001"}}}`,
		string(raw))
}

func TestDecode(t *testing.T) {
	header, err := Header("acct")
	require.NoError(t, err)

	account, err := Decode(header)
	require.NoError(t, err)
	assert.Equal(t, "acct", account)

	_, err = Decode("%%%")
	assert.Error(t, err)

	_, err = Decode(base64.StdEncoding.EncodeToString([]byte("not json")))
	assert.Error(t, err)
}
