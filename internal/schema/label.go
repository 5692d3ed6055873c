package schema

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var labelFolder = cases.Fold()

// FoldLabel brings a label into NFC form and case-folds it so that two
// spellings of the same name compare equal. Committed namespace marks
// are stored folded.
func FoldLabel(s string) string {
	return labelFolder.String(norm.NFC.String(s))
}
