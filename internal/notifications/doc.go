// Package notifications delivers run outcomes to people.
//
// Contributors and the support address receive mail through a Mailer (SMTP
// in production). Operators can additionally receive a one-line run summary
// through ntfy. Both fall back to no-op implementations when unconfigured so
// callers never branch on configuration.
package notifications
