// Package session houses concrete implementations of core.SessionStore, the
// store of run transcripts. The interface and the Session struct live in the
// core package so the engine and the HTTP server depend only on the contract.
package session
