// Package credentials resolves which API key governs a request.
package credentials

import "strings"

// Resolve picks the credential for a request with strict precedence:
//
//  1. Authorization header of the exact form "Bearer <token>" (two
//     whitespace-separated parts, scheme case-insensitive): the token.
//  2. Any other non-empty Authorization header: the raw header value.
//  3. A key supplied in the request body.
//  4. The process-wide default, if configured.
//
// An empty return value means no credential could be resolved; the caller
// decides whether that is fatal for the operation.
func Resolve(authHeader, bodyKey, processDefault string) string {
	if authHeader != "" {
		parts := strings.Fields(authHeader)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
		return authHeader
	}
	if bodyKey != "" {
		return bodyKey
	}
	return processDefault
}
