// Package jwt manages session-credential issuance and verification using configured
// signing keys and strict validation semantics suitable for low-latency
// authentication paths.
//
// Custom claim names carry a configurable prefix so issued tokens can coexist with
// other token producers behind the same gateway.
package jwt
