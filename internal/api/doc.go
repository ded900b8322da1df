// Package api provides the upstream REST client.
//
// Endpoints:
//   - POST /api/auth/login: exchange credentials for a session token
//   - GET  /api/worldboss/current: the boss currently running
//   - POST /api/worldboss/{id}/challenge: obtain a challenge id for joining
//
// Authenticated calls send the token as "Authorization: Bearer <token>".
package api
