package inspect

// Shape names which recognition rule produced a View.
type Shape string

const (
	ShapeList       Shape = "list"
	ShapeEnvelope   Shape = "envelope"
	ShapeCollection Shape = "collection"
	ShapeSingle     Shape = "single"
	ShapeUndecoded  Shape = "undecoded"
)

// collectionFields are tried first when a body carries several arrays.
var collectionFields = []string{"conversations", "messages", "coaches", "participants", "items", "results", "data"}

// View is a uniform reading of a listing body.
type View struct {
	Shape Shape
	Field string // source field for ShapeCollection
	Items []any

	Total    int
	HasTotal bool

	HasPagination bool
	Page          int
	Limit         int
	Pages         int
	HasMore       bool
}

// Envelope recognizes, in order: a bare array of objects, {data, pagination},
// an object with one array field, and finally anything else as a single item.
func Envelope(body any) View {
	if IsUndecoded(body) || IsAbsent(body) {
		return View{Shape: ShapeUndecoded}
	}
	if arr, ok := body.([]any); ok && allObjects(arr) {
		return View{Shape: ShapeList, Items: arr, Total: len(arr), HasTotal: true}
	}
	if obj, ok := body.(map[string]any); ok {
		if v, ok := paginated(obj); ok {
			return v
		}
		if v, ok := collection(obj); ok {
			return v
		}
	}
	return View{Shape: ShapeSingle, Items: []any{body}, Total: 1, HasTotal: true}
}

func allObjects(arr []any) bool {
	for _, it := range arr {
		if _, ok := it.(map[string]any); !ok {
			return false
		}
	}
	return true
}

func paginated(obj map[string]any) (View, bool) {
	data, ok := obj["data"].([]any)
	if !ok {
		return View{}, false
	}
	pg, ok := obj["pagination"].(map[string]any)
	if !ok {
		return View{}, false
	}
	page, ok1 := intOf(pg["page"])
	limit, ok2 := intOf(pg["limit"])
	total, ok3 := intOf(pg["total"])
	pages, ok4 := intOf(pg["pages"])
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return View{}, false
	}
	return View{
		Shape:         ShapeEnvelope,
		Field:         "data",
		Items:         data,
		Total:         total,
		HasTotal:      true,
		HasPagination: true,
		Page:          page,
		Limit:         limit,
		Pages:         pages,
		HasMore:       page*limit < total,
	}, true
}

func collection(obj map[string]any) (View, bool) {
	field := ""
	for _, name := range collectionFields {
		if _, ok := obj[name].([]any); ok {
			field = name
			break
		}
	}
	if field == "" {
		var arrays []string
		for k, v := range obj {
			if _, ok := v.([]any); ok {
				arrays = append(arrays, k)
			}
		}
		if len(arrays) != 1 {
			return View{}, false
		}
		field = arrays[0]
	}
	items := obj[field].([]any)
	v := View{Shape: ShapeCollection, Field: field, Items: items, Total: len(items), HasTotal: true}
	if t, ok := intOf(obj["total"]); ok {
		v.Total = t
	}
	return v, true
}
