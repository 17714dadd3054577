// Package core provides the extract, transform and load logic for file ingestion.
//
// The package holds all domain logic independent of any store driver, UI or
// transport. The CLI, the HTTP server and tests drive it through [Service].
//
// # Pipeline
//
// A [Job] moves one source file into one destination table:
//
//  1. [Extract] reads an Excel sheet or CSV file into a raw [Table]
//  2. An optional [Unpivot] melts wide value columns into name/value rows
//  3. [Transform] coerces every declared column of the [ColumnCondition] and
//     returns a [CleanTable] plus a [ValidationReport]
//  4. [Loader] creates the destination table when absent and writes the rows
//
// Stages run in order and the first failure ends the run. Values that cannot
// be coerced are not failures: they become nil and are counted in the report.
//
// After a full batch, each [DerivedTable] is rebuilt from a query over the
// loaded tables.
//
// # Destinations
//
// Stores implement [Destination] and are acquired through an [Opener]. Each
// load or preview opens its own handle and closes it before returning.
//
// # Error Handling
//
// Stages wrap the sentinel errors in errors.go; match them with errors.Is.
// [MapError] turns any failure into a user message with a support code:
//
//   - FILE001-FILE004: unsupported format, unreadable, empty or oversized source
//   - VAL001-VAL002: column set or existing table disagrees with the condition
//   - DB001-DB003: connection, lock and timeout failures
//   - RUN001-RUN004: unknown job or table, busy, cancelled
//
// # Concurrency
//
// A [RunLimiter] bounds concurrent runs. DuckDB allows one writer per file,
// so the default is a single run at a time.
package core
