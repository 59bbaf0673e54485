// Package gallery synchronizes the local asset mirror with the external catalog,
// and answers queries to the gallery.
//
// All operations run on the caller's goroutine, when called.
// There are no background jobs.
package gallery
