// Package redis implements store.Store on Redis. Records are Hashes,
// listing order comes from Sorted Sets scored by creation time, and
// checkpoints keep their first-save order in a per-run Sorted Set.
//
//	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
//	s := redis.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis
