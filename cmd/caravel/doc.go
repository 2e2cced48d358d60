// Command caravel validates contributor uploads and integrates clean ones
// into their collected mounts.
//
// "caravel run" processes every configured upload mount once and exits; it
// is meant to be scheduled (cron, systemd timer). "caravel check" runs the
// preflight checks, "caravel history" lists past runs from the SQLite
// history, and "caravel unlock" clears the lock marker left on a mount once
// its report has been handled.
package main
