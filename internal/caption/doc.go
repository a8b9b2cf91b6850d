// Package caption accumulates timestamped transcript chunks and renders them
// as sequential timed-caption (SRT) blocks. It also reconciles engine-relative
// timestamps into session-absolute time, including detection of backward
// clock jumps when the engine resets its internal clock mid-buffer.
package caption
