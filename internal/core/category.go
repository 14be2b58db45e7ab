package core

// Category identifiers used by the remote transaction service.
const (
	categoryFood          int64 = 4
	categoryEntertainment int64 = 5
	categoryTransport     int64 = 6
	categoryOther         int64 = 7
)

// DefaultCategory is assigned to expenses confirmed from captured messages
// and to any remote category this client does not know.
const DefaultCategory = "Другое"

// CaptureTitle is the title of expenses created from captured messages.
const CaptureTitle = "Из СМС"

var categoryIDs = map[string]int64{
	"Еда":         categoryFood,
	"Развлечения": categoryEntertainment,
	"Транспорт":   categoryTransport,
	DefaultCategory: categoryOther,
}

// CategoryID translates a local category name to the remote identifier.
// Unknown names map to the generic fallback.
func CategoryID(name string) int64 {
	if id, ok := categoryIDs[name]; ok {
		return id
	}
	return categoryOther
}

// CategoryName translates a remote category identifier back to the local
// name. Unknown identifiers map to DefaultCategory.
func CategoryName(id int64) string {
	switch id {
	case categoryFood:
		return "Еда"
	case categoryEntertainment:
		return "Развлечения"
	case categoryTransport:
		return "Транспорт"
	default:
		return DefaultCategory
	}
}
