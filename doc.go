// Package auth implements the account and session layer for a course
// platform: credential storage, JWT issuance, email verification codes,
// and the admin approval gate that decides which courses an account may
// reach.
//
// User lifecycle:
//   - Every new account starts pending. Users carry a UserStatus column
//     persisted via Bun covering pending, active, rejected, suspended,
//     and archived. Pending accounts can log in and hold a session, but
//     resource guards keep them out of course material.
//   - UserStateMachine centralizes the transition graph, timestamp
//     handling, hooks, and persistence. Approval moves pending (or
//     rejected) accounts to active; ApproveAccountHandler performs the
//     decision together with the course grant replacement in one
//     transaction.
//
// Email verification:
//   - EmailVerifier issues six digit one-time codes with a short expiry
//     and a resend cooldown. A user has at most one live code; consuming
//     it flips is_email_verified. Verification is independent of the
//     approval gate.
//
// Course grants:
//   - CourseGrant rows mirror the latest approval exactly: the decision
//     replaces the full set, omitted courses are revoked. Wire
//     CourseGrantsRoleProvider into the Auther so grants ride inside the
//     token's resource role map.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used by Auther, the
//     verifier, the state machine, and the approval handler. Sinks run
//     best-effort (errors are logged) so you can forward to a database,
//     a queue, or Prometheus without blocking authentication.
//
// Claims decoration:
//   - ClaimsDecorator is invoked before JWTs are signed. Decorators may
//     enrich extension fields such as resource roles or metadata while
//     protected claims (sub, iss, aud, exp, etc.) remain immutable.
package auth
