// Package sqlite implements store.Store using the grove ORM with SQLite
// dialect over the pure-Go modernc.org/sqlite driver. Suitable for
// single-node deployments, CLI tools and tests that want a real database
// without cgo.
//
// Open owns the handle it creates. To share an existing *grove.DB, pass it
// to New instead; the Store then never closes it.
//
//	s, err := sqlite.Open(ctx, "file:vectorflow.db?_pragma=busy_timeout(5000)")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
//	if err := s.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
package sqlite
