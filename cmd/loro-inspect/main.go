// loro-inspect loads an exported snapshot/update blob and prints document
// statistics: mode, change/op counts by peer, and (for a shallow snapshot)
// the cut frontiers, the lamport at the cut, and whether an accelerator blob
// is present. It never opens a network
// connection: an exported blob is the unit this engine hands between
// peers, so inspection only ever needs to read a file.
//
// Flags:
//
//	-in string     path to the exported blob (required)
//	-json          print machine-readable JSON instead of the text summary
//
// © 2025 arena-cache authors. MIT License.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/loro-dev/loro-go/encoding"
	"github.com/loro-dev/loro-go/internal/arena"
)

type options struct {
	in   string
	json bool
}

func parseFlags() *options {
	opts := &options{}
	flag.StringVar(&opts.in, "in", "", "path to the exported blob")
	flag.BoolVar(&opts.json, "json", false, "print machine-readable JSON")
	flag.Parse()
	return opts
}

func main() {
	opts := parseFlags()
	if opts.in == "" {
		fatal(fmt.Errorf("missing required -in flag"))
	}

	buf, err := os.ReadFile(opts.in)
	if err != nil {
		fatal(err)
	}

	ar := arena.New()
	decoded, err := encoding.Decode(ar, buf)
	if err != nil {
		fatal(err)
	}

	summary := summarize(decoded)
	if opts.json {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			fatal(err)
		}
		return
	}
	printSummary(summary)
}

type peerStats struct {
	Peer    string `json:"peer"`
	Changes int    `json:"changes"`
	Ops     int    `json:"ops"`
}

type summaryReport struct {
	Mode             string      `json:"mode"`
	TotalChanges     int         `json:"total_changes"`
	TotalOps         int         `json:"total_ops"`
	Peers            []peerStats `json:"peers"`
	ShallowFrontiers []string    `json:"shallow_frontiers,omitempty"`
	ShallowLamport   uint32      `json:"shallow_lamport,omitempty"`
	HasAccelerator   bool        `json:"has_accelerator"`
}

func summarize(d *encoding.Decoded) summaryReport {
	byPeer := make(map[string]*peerStats)
	order := []string{}
	totalOps := 0
	for _, c := range d.Changes {
		key := fmt.Sprintf("%d", c.Peer)
		s, ok := byPeer[key]
		if !ok {
			s = &peerStats{Peer: key}
			byPeer[key] = s
			order = append(order, key)
		}
		s.Changes++
		s.Ops += len(c.Ops)
		totalOps += len(c.Ops)
	}
	report := summaryReport{
		Mode:         d.Mode.String(),
		TotalChanges: len(d.Changes),
		TotalOps:     totalOps,
	}
	for _, k := range order {
		report.Peers = append(report.Peers, *byPeer[k])
	}
	if d.Mode == encoding.ModeShallowSnapshot {
		for _, f := range d.ShallowFrontiers {
			report.ShallowFrontiers = append(report.ShallowFrontiers, fmt.Sprintf("%d@%d", f.Counter, f.Peer))
		}
		report.ShallowLamport = uint32(d.ShallowLamport)
		report.HasAccelerator = d.Accelerator != nil
	}
	return report
}

func printSummary(r summaryReport) {
	fmt.Printf("Mode:          %s\n", r.Mode)
	fmt.Printf("Changes:       %d\n", r.TotalChanges)
	fmt.Printf("Ops:           %d\n", r.TotalOps)
	fmt.Printf("Peers:         %d\n", len(r.Peers))
	for _, p := range r.Peers {
		fmt.Printf("  %-24s changes=%-6d ops=%d\n", p.Peer, p.Changes, p.Ops)
	}
	if r.Mode == encoding.ModeShallowSnapshot.String() {
		fmt.Printf("Shallow cut:   %v\n", r.ShallowFrontiers)
		fmt.Printf("Shallow lamport: %d\n", r.ShallowLamport)
		fmt.Printf("Accelerator:   %v\n", r.HasAccelerator)
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "loro-inspect:", err)
	os.Exit(1)
}
