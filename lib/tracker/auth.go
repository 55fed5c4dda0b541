// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tracker

import "encoding/base64"

// basicAuthorization builds the header value for email + API token
// authentication.
func basicAuthorization(email, token string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(email+":"+token))
}
