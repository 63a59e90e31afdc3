// Package core provides the business logic for contact imports.
//
// This package holds all domain logic independent of any UI or transport
// layer. It is used by the web handlers, the CLI and tests alike.
//
// # Architecture
//
//   - Formats: export layouts registered at init time with [RegisterFormat].
//     [DetectFormat] picks the first one, by Order, that accepts a header row.
//   - Normalizer: converts rows of unrecognized files. Calls are grouped by
//     [BatchByTokens] and run through a bounded worker pool.
//   - Duplicates: [DuplicateIndex] finds stored contacts that describe the
//     same person; [AreContactsIdentical] and [HasLessOrEqualInformation]
//     filter out matches that add nothing; [MergeContacts] combines the rest.
//   - Service: owns import sessions. Each session runs as a state machine in
//     its own goroutine and publishes an ordered event log.
//
// # Format Registry
//
//	core.RegisterFormat(core.FormatDefinition{
//	    Type:   core.ParserLinkedIn,
//	    Label:  "LinkedIn Connections",
//	    Order:  1,
//	    Source: core.SourceLinkedIn,
//	    Detect: detectLinkedIn,
//	    Parse:  parseLinkedIn,
//	})
//
// # Import Lifecycle
//
//	id, _ := svc.Start(ctx, userID, "contacts.csv", file)
//	events, _ := svc.Subscribe(ctx, id, 0)
//	_ = svc.Confirm(ctx, id)
//	for ev := range events {
//	    // progress, status, complete and error events in Seq order
//	}
//
// The session moves through detecting, preview, processing or normalizing,
// oversized (only when a record exceeds its token ceiling),
// checking-duplicates, resolving (only when duplicates need a decision),
// saving and complete before returning to idle. Fatal errors park the
// session in the error state until it is dismissed.
//
// # Concurrency
//
// [ImportLimiter] caps imports server-wide and allows one per user.
// Within an import only Normalizer calls and bulk merges run in parallel;
// store writes are sequential per user.
package core
