// Package drivers registers the database/sql drivers the store supports.
// Binaries import it for its side effects and call Ready to make that explicit.
package drivers

// Ready is a no-op marker for the import.
func Ready() {}
