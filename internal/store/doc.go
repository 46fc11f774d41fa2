// Package store persists users, lists and items.
//
// Store is the contract the mutation lanes depend on; SQLite is the bundled
// implementation. Positions are compared with SQLite's BINARY collation so
// ordering is byte-wise, matching the order-key generator.
//
// Usage:
//
//	st, err := store.OpenSQLite(filepath.Join(dataDir, "listsync.db"))
//	if err != nil { /* handle */ }
//	defer st.Close()
//
//	max, _ := st.MaxOrderKey(ctx, listID)
//	key, _ := orderkey.Between(max, "")
//	item, err := st.InsertItem(ctx, store.NewItem{ID: id, ListID: listID, CreatedBy: userID, Position: key})
//
// Conditional writes report ErrNotFound when no row matched, including a
// CompareAndSetStatus whose expected status no longer holds.
package store
