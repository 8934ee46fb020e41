// Package identity builds the tenant identity header carried by every call to
// the receptor controller and the Sources API.
package identity

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// HeaderName is the HTTP header carrying the encoded identity
const HeaderName = "x-rh-identity"

// OrgID is sent with every identity; the controller requires an org_id but
// does not check its value
const OrgID = "000001"

// Func builds the header value for an account
type Func func(account string) (string, error)

type document struct {
	Identity struct {
		AccountNumber string `json:"account_number"`
		User          struct {
			IsOrgAdmin bool `json:"is_org_admin"`
		} `json:"user"`
		Internal struct {
			OrgID string `json:"org_id"`
		} `json:"internal"`
	} `json:"identity"`
}

// Header returns base64(JSON) of the identity for account
func Header(account string) (string, error) {
	var doc document
	doc.Identity.AccountNumber = account
	doc.Identity.User.IsOrgAdmin = true
	doc.Identity.Internal.OrgID = OrgID

	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to encode identity: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// Decode returns the account number carried by an encoded identity header
func Decode(header string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return "", fmt.Errorf("failed to decode identity: %w", err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", fmt.Errorf("failed to parse identity: %w", err)
	}
	return doc.Identity.AccountNumber, nil
}
