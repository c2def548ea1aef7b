// Package growpipe implements a blocking byte pipe whose buffer grows on demand instead of
// wrapping. Writers never wait for the reader; a reader with nothing pending suspends until
// the next byte arrives or its context is cancelled. PipeReader and PipeWriter adapt a Pipe
// to io.Reader and io.Writer for callers that move more than one byte at a time.
package growpipe
