// Package buffer implements the rolling per-token trade buffer.
//
// Every trade received from the venue is appended here regardless of whether
// its token is tracked yet. When a token is activated in the registry after
// its first trades arrived, the tracker replays the buffered window so no
// early trade is lost. Entries age out after the configured window.
package buffer
