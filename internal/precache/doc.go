// Package precache eagerly warms the derivative cache. A Walker visits every
// regular file under one collection's source root and asks the shared
// derivative cache for its default-format derivative; failures are recorded
// per file and never stop the walk. The Runner starts one walk per collection
// at process start and runs alongside live HTTP traffic without coordination.
package precache
