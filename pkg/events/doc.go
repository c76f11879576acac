/*
Package events provides an in-process broker for storage lifecycle events.

The database publishes an event whenever a collection is created or
dropped, a snapshot is taken or released, a transaction commits (or is
rejected with a conflict), and when state is flushed to disk. Embedders
subscribe to observe commits without polling:

	sub := db.Events().Subscribe()
	go func() {
		for ev := range sub {
			fmt.Println(ev.Type, ev.Sequence)
		}
	}()

Distribution is best-effort: slow subscribers with full buffers miss
events rather than blocking the storage path.
*/
package events
