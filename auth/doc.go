// Package auth signs outgoing requests and mints credentials for them.
//
// Signers implement client.Signer: BearerSigner and APIKeySigner place a
// cached credential in a header, HMACSigner derives a per-request signature
// from a shared key. Sources implement credential.Source: AppTokenSource
// mints short-lived RS256 application JWTs locally, and OAuth2Source
// exchanges client credentials or a refresh token at a token endpoint.
//
// Signers are stateless apart from their configuration and are safe for
// concurrent use. Registry builds signers by name from configuration maps.
package auth
