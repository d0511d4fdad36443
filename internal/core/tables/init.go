// Package tables registers the target schemas and expression helper
// functions with core. Import it for its side effects.
package tables
