// Package unsafehelpers centralises the unavoidable usage of the `unsafe`
// standard-library package so that the rest of kvshard stays clean and easy
// to audit. Every helper is documented with clear pre-/post-conditions.
//
// DISCLAIMER: these helpers deliberately break the Go memory-safety model
// for the sake of zero-allocation conversions. Use ONLY inside this
// repository; they are not part of the public API and may change without
// notice. Misuse will lead to subtle data races or memory corruption.
//
// © 2025 kvshard authors. MIT License.
package unsafehelpers

import "unsafe"

// StringToBytes re-interprets string data as a byte slice using
// unsafe.Pointer. The slice MUST remain read-only: writing to it mutates
// immutable string storage and crashes the runtime.
//
// Used by internal/keyhash to hash a key's UTF-8 bytes without a copy.
func StringToBytes(s string) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice(unsafe.StringData(s), len(s))
}
