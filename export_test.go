package fibersched

// GoroutineID exposes the package-internal goroutineID for use by
// external test files that would otherwise create an import cycle with
// package fsync (which imports fibersched).
var GoroutineID = goroutineID
