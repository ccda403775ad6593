// Package privgate safely elevates privileges to run security-sensitive
// commands on behalf of an interactive desktop user.
//
// A Manager ties the subsystem together: every command is checked against a
// fixed binary allowlist and an injection blocklist before anything runs,
// execution happens under a sanitized environment with enforced timeouts, and
// privilege escalation walks a fixed strategy ladder (cached sudo
// credentials, graphical askpass prompt, desktop dialog, policy-kit) so the
// user is prompted as rarely as possible. Successful interactive
// authentications feed a TTL session store, and grace windows let long
// multi-step operations skip redundant prompts.
//
// Elevation outcomes, including authorization denials and hosts with no
// usable escalation mechanism, are values on the returned Result; Go errors
// are reserved for API misuse. The package never panics across its API and
// never exits the host process.
package privgate
