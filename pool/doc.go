// Package pool
// Author: momentics <momentics@gmail.com>
//
// Reusable fixed-size scratch chunks connections read into.
package pool
