// Package process composes the retrieval funnel, the narrowing pipeline, and
// the structured parser into per-jurisdiction tasks and the run driver that
// fans them out. All artifact writes go through the shared file-writer
// service so concurrent jurisdictions never race on the output files.
package process

import (
	"path/filepath"

	"github.com/renewmap/compass/pkg/utils"
)

// Layout is the on-disk shape of one run's output directory.
type Layout struct {
	// Out is the run root. The combined CSVs, usage.json,
	// jurisdictions.json, and meta.json live directly in it.
	Out string

	// Logs holds the main run log and one log file per jurisdiction.
	Logs string

	// Cleaned holds the per-jurisdiction text artifacts and value CSVs.
	Cleaned string

	// Ordinances holds the source documents that produced ordinances.
	Ordinances string

	// Cache holds retrieved documents before a jurisdiction finishes.
	Cache string
}

// NewLayout maps the standard subdirectories under root.
func NewLayout(root string) *Layout {
	return &Layout{
		Out:        root,
		Logs:       filepath.Join(root, "logs"),
		Cleaned:    filepath.Join(root, "cleaned_text"),
		Ordinances: filepath.Join(root, "ordinance_files"),
		Cache:      filepath.Join(root, ".cache"),
	}
}

// Ensure creates every directory in the layout.
func (l *Layout) Ensure() error {
	return utils.EnsureDirs(l.Out, l.Logs, l.Cleaned, l.Ordinances, l.Cache)
}

func (l *Layout) UsageFile() string         { return filepath.Join(l.Out, "usage.json") }
func (l *Layout) JurisdictionsFile() string { return filepath.Join(l.Out, "jurisdictions.json") }
func (l *Layout) MetaFile() string          { return filepath.Join(l.Out, "meta.json") }
func (l *Layout) QuantitativeFile() string  { return filepath.Join(l.Out, "quantitative_ordinances.csv") }
func (l *Layout) QualitativeFile() string   { return filepath.Join(l.Out, "qualitative_ordinances.csv") }
func (l *Layout) ErrorLog() string          { return filepath.Join(l.Out, "error.log") }
func (l *Layout) MainLog() string           { return filepath.Join(l.Logs, "run.log") }

// JurisdictionLog is the log file for one jurisdiction's records.
func (l *Layout) JurisdictionLog(fullName string) string {
	return filepath.Join(l.Logs, fullName+".log")
}
