// Package session implements the streaming buffer manager at the heart of the
// caption service. It accumulates raw PCM per session across otherwise
// stateless calls, gates rounds on a target buffer duration, carries
// incomplete trailing speech into the next round, and keeps session-absolute
// timestamps correct across rounds.
package session
