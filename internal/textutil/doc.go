// Package textutil provides the naming helpers used when files leave the
// machine: remote upload names and local staging file names.
//
// Names are folded to ASCII (accents stripped through golang.org/x/text
// normalization), stripped of characters Drive and common filesystems reject,
// and bounded in length.
package textutil
