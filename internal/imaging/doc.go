// Package imaging owns the closed set of output formats imghub can serve and
// the re-encode capability used by the derivative cache. Formats register a
// Codec at init time (mirroring how hub modules registered their metadata);
// request parsing resolves the "type" query value against that registry and
// returns a typed RequestError for anything unknown instead of defaulting.
package imaging
