// Package fetch downloads plain media URLs over HTTP directly, without
// the yt-dlp tool. It serves sources that expose a single ready-made
// representation, so format selector chains are ignored.
package fetch
