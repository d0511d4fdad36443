// Package core provides the mapping, transform, filter and export logic.
//
// This package holds all domain logic independent of any UI or transport
// layer. It is used by the web handlers, the command line tool and tests.
//
// # Architecture
//
//   - Resolver: [Resolve] turns a column reference (name, index or
//     spreadsheet letter) into a row value.
//   - Expressions: [CompileExpression] compiles user transforms and advanced
//     filters with value, col[...] and letter bindings.
//   - Filters: [CompileFilter] evaluates condition groups or an expression.
//   - Export: [NewExporter] plans output columns from a [MappingConfig];
//     [Exporter.Run] produces CSV text, stats and a report.
//   - Service: runs exports on background workers and streams events.
//
// # Target Schemas
//
// Targets are registered at init time using [Register]:
//
//	core.Register(core.TargetSchema{
//	    Key:   "crm_contacts",
//	    Group: "CRM",
//	    Label: "Contacts",
//	    Columns: []core.TargetColumn{
//	        {Name: "Email", Required: true},
//	        {Name: "Phone"},
//	    },
//	})
//
// # Export Flow
//
//  1. Client calls [Service.StartExport] with a decoded table and mapping
//  2. Transforms and the filter are compiled; compile errors fail the export
//  3. Rows are filtered, mapped and transformed; all-blank rows are skipped
//  4. Progress is broadcast every [ProgressChunkSize] rows via [Service.SubscribeExport]
//  5. The CSV, report and download filename are kept for the retention period
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each category has a code for support reference (DEC, EXP, FLT, XPT, TPL).
// A transform that fails on one row keeps the raw value and is counted in
// [Stats.TransformErrors]; a filter that fails aborts the export.
package core
