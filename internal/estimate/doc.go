// Package estimate computes total download size and ETA for a batch of
// rows without blocking callers. A single background worker resolves
// each URL, walks an estimation ladder per row and delivers one
// aggregated result; a generation counter makes late or cancelled
// results inert instead of requiring worker joins.
package estimate
