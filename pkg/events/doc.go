/*
Package events provides an in-memory event broker for Burrow's pub/sub
notifications: commit sync outcomes, pack writes and batch lifecycle.
Publish waits while the broker's 100-event queue is full, until the queue
drains or the broker is stopped; a subscriber whose own buffer is full has
events dropped rather than stalling the broadcast.
*/
package events
