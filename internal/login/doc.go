// Package login coordinates single-flight OAuth logins.
//
// A Coordinator holds at most one pending flow, either creating a new account
// or reconnecting an existing one. The browser and callback side of the flow
// is delegated to a Listener; the coordinator only hands out cancellation and
// collects the one result the listener delivers.
package login
