// Package form decodes application/x-www-form-urlencoded bodies into ordered key/value pairs.
// Decoding is pure; callers decide how to report a ParseError.
package form
