// Package vad implements frame-level voice activity segmentation.
// A fixed-size frame classifier labels each 30ms frame as speech or non-speech,
// and a two-state automaton aggregates the labels into non-overlapping speech
// segments with pre-roll padding and minimum speech/silence run lengths.
package vad
