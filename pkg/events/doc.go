/*
Package events provides an in-memory event broker for driver lifecycle
notifications.

The lifecycle controllers publish an event after every confirmed state
transition (volume/snapshot created or deleted, volume extended, attach
and detach, compensating deletes). Delivery is non-blocking: slow
subscribers drop events rather than stalling an operation. The broker is
optional - controllers run with a nil broker and skip publishing.
*/
package events
