// Package platform provides filesystem helpers shared by the download
// and estimation layers: filename sanitization, download-state probing
// and directory management.
package platform
