// Package testutil contains helper builders and fakes used across tests to
// reduce boilerplate: a fluent message builder, a scripted model, a recording
// observer, a failing memory store and a conformance suite every
// core.MemoryStore backend runs. They are not intended for production usage.
package testutil
