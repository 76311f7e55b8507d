// Package media holds the types shared by capture, recording, stitching, and
// upload: the feedback Mode and the immutable Artifact handed between stages.
package media
