// Package inbound routes provider redirect callbacks to the module that
// issued the authorization.
//
// Each (provider, state) pair is claimed once. A repeated redirect for a
// claim that is processing or complete is acknowledged without running the
// code exchange again; a failed claim is released.
package inbound
