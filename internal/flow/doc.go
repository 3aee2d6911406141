// Package flow correlates outbound authorization requests with the redirects
// that complete them.
//
// A Manager starts a flow by generating a correlation token, embedding it as
// the state parameter of the request URI and registering a pending entry in
// its Table before asking the external user-agent to present the URI. The
// caller then suspends in Flow.Wait.
//
// Completion comes from exactly one of three racing sources: a redirect
// delivered to Manager.HandleRedirect, the flow's deadline, or an explicit
// cancellation. Each of them removes the entry with Table.Take, and only the
// goroutine whose Take succeeds resumes the caller. The others observe absence
// and do nothing, which also makes duplicate redirects harmless.
//
// Pending flows live in memory only and are lost when the process exits.
package flow
