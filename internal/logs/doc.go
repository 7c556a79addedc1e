// Package logs reads the daemon log file for `viralforge logs`.
//
// Last returns the final lines of the file with the offset to resume from,
// and Follow polls from an offset until its context ends. A Filter narrows
// JSON log lines by level, component, job or event type; console-format lines
// carry no structure and only pass an empty filter.
package logs
