// Package store defines interfaces for persisting crawl runs and their page
// records. Implementations live in other packages; this package must not
// import database drivers or concrete clients.
package store
