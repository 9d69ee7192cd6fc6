package schema

// AlbumCreate describes the body of POST /api/admin/albums
var AlbumCreate = map[string]interface{}{
	"type":     "object",
	"required": []string{"title"},
	"properties": map[string]interface{}{
		"title":       map[string]interface{}{"type": "string", "minLength": 1, "maxLength": 200},
		"slug":        map[string]interface{}{"type": "string", "maxLength": 80},
		"description": map[string]interface{}{"type": "string", "maxLength": 4000},
		"eventId":     map[string]interface{}{"type": []string{"string", "integer"}},
		"published":   map[string]interface{}{"type": "boolean"},
	},
	"additionalProperties": false,
}

// AdvertCreate describes the body of POST /api/admin/adverts
var AdvertCreate = map[string]interface{}{
	"type":     "object",
	"required": []string{"title"},
	"properties": map[string]interface{}{
		"title":       map[string]interface{}{"type": "string", "minLength": 1, "maxLength": 200},
		"description": map[string]interface{}{"type": "string", "maxLength": 4000},
		"linkUrl":     map[string]interface{}{"type": "string", "format": "uri"},
		"active":      map[string]interface{}{"type": "boolean"},
	},
	"additionalProperties": false,
}
