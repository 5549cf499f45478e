// Package cache owns the derivative cache: the disk-backed Store that maps a
// collection + relative path onto CachePath/<collection>/<path> files, and the
// Derivatives service that implements get-or-create on top of it. The store
// writes through a temp file + rename so readers never observe a partial
// derivative, and it is the only code in imghub that writes or removes files
// under the cache root. Entries are never invalidated automatically; a stale
// derivative stays until an authorized delete removes it.
package cache
