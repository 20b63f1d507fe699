// Package auth provides authentication and authorisation for countcam core.
//
// It implements a 2-tier role model (user → admin) with:
//   - Argon2id password hashing (OWASP 2025 recommendation)
//   - Short-lived JWT access tokens signed with HS256
//   - Static role checks carried in token claims (no database lookup)
//
// Users can observe devices and drive processing-state transitions;
// admins additionally manage devices, groups, and accounts. The first
// boot seeds an admin account with a random logged password.
package auth
