// Package diagnostics writes crash dumps when an audit panics.
//
// A CrashDumpWriter follows the event bus so a dump records the run and the
// stage that was executing. Dumps are JSON files named crash-<timestamp>.json
// and only the newest DiagnosticsConfig.MaxCrashDumps are kept.
package diagnostics
