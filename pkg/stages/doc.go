/*
Package stages implements the five analysis stages of the pipeline:
file-type, clamav, yara, ioc-extract, and sandbox.

Every stage satisfies the same small Stage interface and is specified
by its contract, not its detection logic: inputs come from the
StageContext (local file path, identifiers, prior results) and the
outcome is a StageResult whose findings keys are fixed per stage.
Faults inside a stage become failed StageResults; nothing here panics
across the interface boundary.
*/
package stages
