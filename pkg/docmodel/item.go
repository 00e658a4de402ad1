package docmodel

// ItemKind tags the variants of the work-item sum type flowing through
// pipeline stages.
type ItemKind string

const (
	KindDocument ItemKind = "document"
	KindMetaInfo ItemKind = "metainfo"
	KindFileRef  ItemKind = "fileref"
)

// Item is the work unit a stage operates on. A stage declares which variant
// it accepts; the executor enforces the declaration at runtime.
type Item interface {
	ItemKind() ItemKind
}

func (d *Document) ItemKind() ItemKind { return KindDocument }
func (m *MetaInfo) ItemKind() ItemKind { return KindMetaInfo }
func (f *FileRef) ItemKind() ItemKind  { return KindFileRef }

// ItemFilename resolves the filename behind an item, for error records.
func ItemFilename(it Item) string {
	switch v := it.(type) {
	case *Document:
		if v.MetaInfo != nil {
			return v.MetaInfo.FileFeatures.Filename
		}
	case *MetaInfo:
		return v.FileFeatures.Filename
	case *FileRef:
		return v.Path
	}
	return ""
}
