package nscache

// Statistics is an aggregate, service-wide snapshot. Like the flush, it
// does not respect namespaces: counters cover every namespace. The
// counters may include entries that have expired but not yet been
// removed.
type Statistics struct {
	Hits     uint64 // counter of cache hits
	Misses   uint64 // counter of cache misses
	ByteHits uint64 // counter of bytes transferred for gets

	Items uint64 // items currently in the cache
	Bytes uint64 // size of all items currently in the cache

	Oldest int64 // age of the oldest item, in seconds
}
