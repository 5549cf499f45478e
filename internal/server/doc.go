// Package server hosts the Fiber HTTP service: request-ID and recovery
// middleware, the liveness endpoint, and one read/delete route pair per
// configured asset collection. Collection roots are resolved once into the
// CollectionRegistry at startup and handed to the injected AssetHandler, so
// handlers never consult configuration themselves. Keep exports narrow and
// accept explicit dependencies; diagnostics live in the routes subpackage.
package server
