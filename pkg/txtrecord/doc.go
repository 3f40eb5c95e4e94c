// Package txtrecord encodes and decodes DNS-SD TXT record data.
//
// A TXT record is a sequence of length-prefixed strings. Each string holds one
// attribute in the form "key=value" or, for boolean attributes, just "key":
//
//	07 'f' 'o' 'o' '=' 'b' 'a' 'r'   -> foo=bar
//	04 'f' 'l' 'a' 'g'               -> flag (no value)
//
// A single string is limited to 255 bytes. Encode rejects longer entries
// instead of truncating them, and Decode rejects input whose length bytes
// run past the end of the buffer. Both failures are *CodecError values.
//
// An empty record is encoded as one zero byte, because the DNS format does
// not allow TXT rdata without any strings.
package txtrecord
