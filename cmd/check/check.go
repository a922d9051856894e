// Package check reports the reconciliation status without writing anything
package check

import (
	"errors"

	"fjacquet/ledger-reconcile/cmd/root"
	"fjacquet/ledger-reconcile/internal/recerror"
	"fjacquet/ledger-reconcile/internal/reconcile"

	"github.com/spf13/cobra"
)

// Cmd represents the check command
var Cmd = &cobra.Command{
	Use:   "check",
	Short: "Report unreconciled feed records and stale journal entries",
	Long: `Check loads the journal and the external feeds and reports every feed
record that has no matching posting yet. Journal postings that reference
downloaded records missing from the feeds are reported as stale and make the
command fail. The journal is never modified.`,
	Run: checkFunc,
}

func checkFunc(cmd *cobra.Command, args []string) {
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

	err = session.LoadFeed(root.SharedFlags.Feeds...)
	var stale *recerror.StaleEntryError
	if errors.As(err, &stale) {
		for _, entry := range stale.Entries {
			root.Log.Errorf("%s", entry)
		}
		root.Log.Fatalf("Found %d stale journal entries", len(stale.Entries))
	}
	if err != nil {
		root.Log.Fatalf("Error loading feeds: %v", err)
	}

	pending := session.Remaining()
	for {
		record, ok := session.Next()
		if !ok {
			break
		}
		root.Log.Infof("Unreconciled: %s", record)
		session.Skip()
	}

	if pending == 0 {
		root.Log.Info("Journal is fully reconciled with the feeds")
		return
	}
	root.Log.Infof("%d records pending reconciliation", pending)
}
