// Package ytdlp binds the yt-dlp tool, via github.com/lrstanley/go-ytdlp,
// to the media boundary interfaces: metadata resolution and download
// execution with progress bridging and error classification.
package ytdlp
