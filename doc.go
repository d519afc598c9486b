// Package accounts implements account lifecycle and session management for
// the EcoPulse dashboard backend: registration, email verification, login,
// password reset, manual and automatic deactivation, token-based
// reactivation, and the inactivity sweeper that retires idle accounts.
//
// The package is transport-agnostic at its core (command handlers over a
// credential store) and ships a go-router HTTP controller plus session
// middleware on top. Optional integrations live in subpackages: notify
// (SMTP and AMQP notification gateways) and provider/google (federated
// sign-in).
package accounts
