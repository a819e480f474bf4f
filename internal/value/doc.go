// Package value defines the field values stored in a revision.
//
// Values form a sealed set (Null, String, Int, Bool, Array, Object) with a
// single canonical JSON encoding. Revision rows persist their domain fields
// as a canonical Object, and changelog entries persist before/after values
// with the same encoding, so equality of two values is equality of their
// encodings.
//
// Strings are NFC normalized when encoded. A write that only changes the
// Unicode normalization form of a string is therefore not a change.
package value
