// Package run drives a non-interactive reconciliation pass
package run

import (
	"fjacquet/ledger-reconcile/cmd/root"
	"fjacquet/ledger-reconcile/internal/models"
	"fjacquet/ledger-reconcile/internal/recerror"
	"fjacquet/ledger-reconcile/internal/reconcile"

	"github.com/spf13/cobra"
)

// Cmd represents the run command
var Cmd = &cobra.Command{
	Use:   "run",
	Short: "Reconcile external feeds against the journal",
	Long: `Reconcile loads the journal and the external feeds, then walks the pending
records in date order. A record with existing-posting candidates links the
best one; with --auto-create, records without any get a new transaction
appended. Everything else is skipped. Use --dry-run to preview candidates
without writing.`,
	Run: runFunc,
}

func init() {
	Cmd.Flags().BoolVar(&root.SharedFlags.DryRun, "dry-run", false, "Print candidates without modifying the journal")
	Cmd.Flags().BoolVar(&root.SharedFlags.AutoCreate, "auto-create", false, "Append a new transaction for records without match candidates")
}

func runFunc(cmd *cobra.Command, args []string) {
	opts, err := root.SessionOptions()
	if err != nil {
		root.Log.Fatalf("Error loading session options: %v", err)
	}
	if len(root.SharedFlags.Feeds) == 0 {
		root.Log.Fatal("No feed files given, use --feed")
	}

	session, err := reconcile.NewSession(opts)
	if err != nil {
		root.Log.Fatalf("Error loading journal: %v", err)
	}
	if err := session.LoadFeed(root.SharedFlags.Feeds...); err != nil {
		root.Log.Fatalf("Error loading feeds: %v", err)
	}

	linked, created, skipped := 0, 0, 0
	for {
		record, ok := session.Next()
		if !ok {
			break
		}
		candidates, err := session.Candidates()
		if err != nil {
			root.Log.Fatalf("Error generating candidates for %s: %v", record, err)
		}

		if root.SharedFlags.DryRun {
			printCandidates(record, candidates)
			session.Skip()
			skipped++
			continue
		}

		candidate := pickCandidate(candidates)
		if candidate == nil {
			root.Log.Infof("Skipping %s (no candidate chosen)", record)
			session.Skip()
			skipped++
			continue
		}

		_, posting, err := candidate.Apply()
		if recerror.IsConcurrentModification(err) {
			root.Log.Warnf("Journal modified concurrently, reloading: %v", err)
			if err := session.Reload(); err != nil {
				root.Log.Fatalf("Error reloading journal: %v", err)
			}
			continue
		}
		if err != nil {
			root.Log.Fatalf("Error applying candidate for %s: %v", record, err)
		}

		switch candidate.(type) {
		case *reconcile.LinkCandidate:
			linked++
		default:
			created++
		}
		root.Log.Infof("Committed %s at %s:%d", record, posting.Loc.Filename, posting.Loc.Line)
	}

	root.Log.Infof("Reconciliation finished: %d linked, %d created, %d skipped", linked, created, skipped)
}

// pickCandidate chooses the first existing-posting candidate; records with
// none get a new transaction only when --auto-create is set.
func pickCandidate(candidates []reconcile.Candidate) reconcile.Candidate {
	for _, candidate := range candidates {
		if _, ok := candidate.(*reconcile.LinkCandidate); ok {
			return candidate
		}
	}
	if root.SharedFlags.AutoCreate && len(candidates) > 0 {
		return candidates[len(candidates)-1]
	}
	return nil
}

func printCandidates(record models.ExternalRecord, candidates []reconcile.Candidate) {
	root.Log.Infof("Record %s:", record)
	for i, candidate := range candidates {
		root.Log.Infof("  [%d] %s", i+1, candidate.Description())
		for _, line := range candidate.Preview() {
			root.Log.Infof("      %s", line)
		}
	}
}
