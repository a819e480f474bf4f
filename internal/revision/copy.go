package revision

import (
	"github.com/roach88/revkit/internal/schema"
	"github.com/roach88/revkit/internal/value"
)

// reservedKeys can never be overridden by domain logic.
var reservedKeys = map[string]bool{
	schema.ColRecordID: true,
	schema.ColRevision: true,
}

// generatedColumns are presentational and never carried into a new revision.
var generatedColumns = []string{schema.ColPrettyRevision}

// Copy builds the full field set of revision target from source.
//
// Generated columns are dropped, then staticOverrides are applied, then
// overrides. Static overrides go first so a domain override of a
// non-reserved key wins. The revision number is always target and the
// record ID always the source's.
func Copy(source value.Object, target int64, overrides, staticOverrides value.Object) (value.Object, error) {
	if source == nil {
		return nil, &Error{
			Code:     ErrCodeCopySourceMissing,
			Message:  "source revision does not exist",
			Revision: target,
		}
	}
	for key := range overrides {
		if reservedKeys[key] {
			return nil, &Error{
				Code:     ErrCodeReservedKey,
				Message:  "reserved key cannot be overridden",
				RecordID: intOf(source[schema.ColRecordID]),
				Field:    key,
			}
		}
	}

	out := source.Clone()
	for _, col := range generatedColumns {
		delete(out, col)
	}
	for k, v := range staticOverrides {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}

	out[schema.ColRecordID] = source[schema.ColRecordID]
	out[schema.ColRevision] = value.Int(target)
	return out, nil
}
