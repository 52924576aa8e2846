// Package lscauth is the authentication and session-token subsystem of the LSC studio
// platform: credential storage, JWT access and refresh tokens, refresh rotation with
// stolen-token detection, single-use email verification and password reset tokens,
// composite-key rate limiting and security audit logging.
//
// Engine methods are safe to call from multiple goroutines after [Builder.Build].
//
// # Architecture boundaries
//
// lscauth is the public surface. It exposes [Engine], [Builder], [Config], the [Store] and
// [Mailer] collaborators and the closed [ErrorKind] taxonomy. Flow orchestration and rate
// limiting live under internal/ and are never exported. store/postgres and mailer/smtp
// are the production collaborators; [MemoryStore] and [LogMailer] serve tests and local
// development.
//
// # Failure policy
//
// Every error returned by an Engine method is an [*Error]. Registration, password reset
// requests and verification resends succeed silently for unknown emails. Audit writes and
// email deliveries never fail the operation that triggered them.
//
// # What this package must NOT do
//
//   - Store raw refresh, verification or reset tokens.
//   - Log passwords or raw tokens.
//   - Import any sub-package that re-imports lscauth (no import cycles).
package lscauth
