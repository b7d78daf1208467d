package ffmpeg

import (
	"github.com/five82/deepprobe/internal/graph"
)

// Invocation is one ffmpeg run of a rendered graph.
type Invocation struct {
	// Binary is the ffmpeg executable; empty means "ffmpeg" on PATH.
	Binary string
	// LogLevel is passed as -v and scopes verbosity to this run only.
	LogLevel string
	Graph    *graph.Rendered
	// Duration of the longest input in seconds, used for percent/ETA.
	Duration float64
}

// BuildCommand builds the ffmpeg argument list for an invocation.
// Metadata sinks are routed to the null muxer; file outputs follow.
func BuildCommand(inv Invocation) []string {
	logLevel := inv.LogLevel
	if logLevel == "" {
		logLevel = "error"
	}

	args := []string{"-hide_banner", "-nostdin", "-v", logLevel, "-stats", "-y"}
	for _, in := range inv.Graph.Inputs {
		args = append(args, "-i", in)
	}
	if inv.Graph.FilterComplex != "" {
		args = append(args, "-filter_complex", inv.Graph.FilterComplex)
	}
	for _, label := range inv.Graph.NullMaps {
		args = append(args, "-map", label, "-f", "null", "-")
	}
	for _, out := range inv.Graph.FileOutputs {
		args = append(args, out.Args...)
	}
	return args
}

func binary(name string) string {
	if name == "" {
		return "ffmpeg"
	}
	return name
}
