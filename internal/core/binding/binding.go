package binding

import (
	"fmt"
	"strings"

	coreerrors "github.com/aevon-lab/spreadsheet-report/internal/core/errors"
	"github.com/aevon-lab/spreadsheet-report/internal/core/platform"
)

// Descriptor keys recognised inside template cells.
const (
	KeyTimestamp      = "timeStamp"
	KeyTimestampStart = "timeStampStart"
	KeyTimestampEnd   = "timeStampEnd"
	KeyAssetID        = "assetId"
	KeyAssetGAI       = "assetGai"
	KeyAttribute      = "attribute"
	KeyRaster         = "raster"
	KeyMode           = "mode"
	KeyFillPolicy     = "fillPolicy"
)

// Gap-fill policies. Anything else yields the placeholder.
const (
	FillZero = "zero"
	FillLast = "last"
)

// Binding is one parsed template descriptor. The concrete type is one of
// TimestampColumn, DataColumn, TimestampStart, TimestampEnd or DataEntry.
type Binding interface {
	binding()
}

// AssetRef names an asset either by numeric id or by GAI. Exactly one is set.
type AssetRef struct {
	ID  int64
	GAI string
}

func (a AssetRef) IsGAI() bool {
	return a.GAI != ""
}

func (a AssetRef) String() string {
	if a.IsGAI() {
		return a.GAI
	}
	return fmt.Sprintf("%d", a.ID)
}

// Source is the data side shared by DataColumn and DataEntry.
type Source struct {
	Asset      AssetRef
	Attribute  string
	Raster     string
	Mode       string
	FillPolicy string
}

// WithAssetID returns s bound to an already resolved numeric asset.
func (s Source) WithAssetID(id int64) Source {
	s.Asset = AssetRef{ID: id}
	return s
}

// TimestampColumn marks the column holding the aligned timestamp grid.
type TimestampColumn struct {
	Format string
	Raster string
}

// DataColumn fills every row of a column from one aligned series.
type DataColumn struct {
	Source
}

// TimestampStart renders the window start into a single cell.
type TimestampStart struct {
	Format string
}

// TimestampEnd renders the last day inside the window into a single cell.
type TimestampEnd struct {
	Format string
}

// DataEntry fills a single cell from one aggregation window.
type DataEntry struct {
	Source
}

func (TimestampColumn) binding() {}
func (DataColumn) binding()      {}
func (TimestampStart) binding()  {}
func (TimestampEnd) binding()    {}
func (DataEntry) binding()       {}

// DecodeColumn classifies the descriptor of a table-style column.
// A DataColumn may omit its raster; the caller inherits it from the timestamp column.
func DecodeColumn(fields map[string]any) (Binding, error) {
	if format, ok := fields[KeyTimestamp]; ok {
		f, err := stringField(KeyTimestamp, format)
		if err != nil {
			return nil, err
		}
		raster, ok := fields[KeyRaster]
		if !ok {
			return nil, coreerrors.Configurationf("timestamp column %q has no raster", f)
		}
		r, err := stringField(KeyRaster, raster)
		if err != nil {
			return nil, err
		}
		return TimestampColumn{Format: f, Raster: r}, nil
	}

	src, err := decodeSource(fields, false)
	if err != nil {
		return nil, err
	}
	return DataColumn{Source: src}, nil
}

// DecodeEntry classifies a descriptor embedded in the free text of an entry-style cell.
func DecodeEntry(fields map[string]any) (Binding, error) {
	if v, ok := fields[KeyTimestampStart]; ok {
		f, err := stringField(KeyTimestampStart, v)
		if err != nil {
			return nil, err
		}
		return TimestampStart{Format: f}, nil
	}
	if v, ok := fields[KeyTimestampEnd]; ok {
		f, err := stringField(KeyTimestampEnd, v)
		if err != nil {
			return nil, err
		}
		return TimestampEnd{Format: f}, nil
	}

	src, err := decodeSource(fields, true)
	if err != nil {
		return nil, err
	}
	return DataEntry{Source: src}, nil
}

func decodeSource(fields map[string]any, requireRaster bool) (Source, error) {
	var src Source

	rawID, hasID := fields[KeyAssetID]
	rawGAI, hasGAI := fields[KeyAssetGAI]
	switch {
	case hasID && hasGAI:
		return Source{}, coreerrors.Configurationf("descriptor names both %s and %s", KeyAssetID, KeyAssetGAI)
	case hasID:
		d, ok := platform.ExtractDecimal(rawID)
		if !ok || !d.IsInteger() || !d.IsPositive() {
			return Source{}, coreerrors.Configurationf("invalid %s %v", KeyAssetID, rawID)
		}
		src.Asset.ID = d.IntPart()
	case hasGAI:
		gai, err := stringField(KeyAssetGAI, rawGAI)
		if err != nil {
			return Source{}, err
		}
		src.Asset.GAI = gai
	default:
		return Source{}, coreerrors.Configurationf("descriptor names no asset")
	}

	var err error
	if src.Attribute, err = requiredString(fields, KeyAttribute); err != nil {
		return Source{}, err
	}
	if src.Mode, err = requiredString(fields, KeyMode); err != nil {
		return Source{}, err
	}
	if requireRaster {
		if src.Raster, err = requiredString(fields, KeyRaster); err != nil {
			return Source{}, err
		}
	} else if v, ok := fields[KeyRaster]; ok {
		if src.Raster, err = stringField(KeyRaster, v); err != nil {
			return Source{}, err
		}
	}
	if v, ok := fields[KeyFillPolicy]; ok {
		if src.FillPolicy, err = stringField(KeyFillPolicy, v); err != nil {
			return Source{}, err
		}
	}
	return src, nil
}

func requiredString(fields map[string]any, key string) (string, error) {
	v, ok := fields[key]
	if !ok {
		return "", coreerrors.Configurationf("descriptor is missing %q", key)
	}
	return stringField(key, v)
}

func stringField(key string, v any) (string, error) {
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", coreerrors.Configurationf("descriptor field %q must be a non-empty string", key)
	}
	return s, nil
}
