// Package catalog implements the file catalog and chunked transfer engine:
// tracking locally shared files and remotely offered ones, scheduling
// downloads under a concurrency cap, serving chunked uploads under a
// per-peer cap, and verifying reassembled downloads by SHA-256.
package catalog
