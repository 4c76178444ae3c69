package artifact

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/autotab/api/internal/automl"
)

// WriteImportance writes a feature,importance CSV with one row per source
// column.
func WriteImportance(w io.Writer, imp []automl.FeatureImportance) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"feature", "importance"}); err != nil {
		return err
	}
	for _, fi := range imp {
		if err := cw.Write([]string{fi.Feature, strconv.FormatFloat(fi.Importance, 'f', -1, 64)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
