// Command reversetest reverses traced outlines and checks that landmarks and
// segments survive the round trip.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"slices"

	"github.com/google/uuid"

	"github.com/bmskinner/nma-sub021/internal/ingest"
	"github.com/bmskinner/nma-sub021/internal/landmark"
	"github.com/bmskinner/nma-sub021/internal/nucleus"
	"github.com/bmskinner/nma-sub021/internal/validate"
)

func main() {
	outlinePath := flag.String("outline", "", "Path to an outline JSON file")
	rules := flag.String("rules", "round", "Rule set name or YAML path")
	count := flag.Int("segments", 4, "Segments per nucleus")
	flag.Parse()

	if *outlinePath == "" {
		fmt.Println("Usage: reversetest -outline <path> [-rules round] [-segments 4]")
		os.Exit(1)
	}

	rs, err := landmark.LoadRuleSet(*rules)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load rule set: %v\n", err)
		os.Exit(1)
	}
	opts := nucleus.DefaultOptions()
	opts.Rules = rs

	nuclei, err := ingest.LoadFile(*outlinePath, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	if len(nuclei) == 0 {
		fmt.Fprintln(os.Stderr, "No outlines could be built")
		os.Exit(1)
	}
	fmt.Printf("Loaded %d nuclei, rule set %s\n\n", len(nuclei), rs.Name)

	fmt.Printf("%-36s %6s %6s %6s %6s %s\n", "ID", "Points", "RP", "RP'", "RP''", "Result")
	failed := 0
	for _, n := range nuclei {
		ok, line := check(n, *count)
		if !ok {
			failed++
		}
		fmt.Println(line)
	}

	fmt.Printf("\n%d of %d nuclei passed\n", len(nuclei)-failed, len(nuclei))
	if failed > 0 {
		os.Exit(2)
	}
}

// check segments n, reverses it twice, and reports whether the landmarks
// and segment ids came back unchanged.
func check(n *nucleus.Nucleus, count int) (bool, string) {
	row := func(rp, rp1, rp2 int, result string) string {
		return fmt.Sprintf("%-36s %6d %6d %6d %6d %s", n.ID(), n.Len(), rp, rp1, rp2, result)
	}
	if err := n.SegmentEvenly(count); err != nil {
		return false, row(-1, -1, -1, "segment: "+err.Error())
	}
	rp, _ := n.ReferenceIndex()
	ids := n.Segments().IDs()
	sp, err := n.SegmentedProfile(landmark.Reference)
	if err != nil {
		return false, row(rp, -1, -1, "profile: "+err.Error())
	}
	v := validate.New(sp.Ring)

	if err := n.Reverse(); err != nil {
		return false, row(rp, -1, -1, "reverse: "+err.Error())
	}
	rp1, _ := n.ReferenceIndex()
	if rep := v.ValidateOne(n); !rep.OK() {
		return false, row(rp, rp1, -1, "reversed: "+rep.String())
	}

	if err := n.Reverse(); err != nil {
		return false, row(rp, rp1, -1, "restore: "+err.Error())
	}
	rp2, _ := n.ReferenceIndex()
	if rep := v.ValidateOne(n); !rep.OK() {
		return false, row(rp, rp1, rp2, "restored: "+rep.String())
	}

	after := n.Segments().IDs()
	byBytes := func(a, b uuid.UUID) int { return bytes.Compare(a[:], b[:]) }
	slices.SortFunc(ids, byBytes)
	slices.SortFunc(after, byBytes)
	if !slices.Equal(ids, after) {
		return false, row(rp, rp1, rp2, "segment ids changed")
	}
	return true, row(rp, rp1, rp2, "ok")
}
