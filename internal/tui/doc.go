// Package tui renders the terminal dashboard: a bubbletea program that
// polls registry and feed state on a refresh tick and draws the markets
// table, the risk event log, and the stats footer. All engine access goes
// through the Options callbacks, so the package never owns domain state.
package tui
