// Package smtp implements lscauth.Mailer over an SMTP relay.
//
// Links embed the raw token as a query parameter of the configured base URL. Delivery
// errors are returned to the caller; the Engine logs and counts them without failing the
// operation that triggered the email.
package smtp
