package constant

import "github.com/google/jsonschema-go/jsonschema"

// ChatResponseSchema describes the streamed chat document. Required order is
// the property order sent upstream.
func ChatResponseSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			ResponseMessageField: {Type: "string", Description: "Answer to the user's last message, markdown allowed"},
			"hasNewInfo":         {Type: "boolean", Description: "Whether the answer adds information not already in the notes or conversation"},
			"followUpQuestions": {
				Type:        "array",
				Description: "Up to 3 short follow-up questions",
				Items:       &jsonschema.Schema{Type: "string"},
			},
		},
		Required: []string{ResponseMessageField, "hasNewInfo", "followUpQuestions"},
	}
}

// ContentHierarchySchema describes one level of notes; children repeat the shape.
func ContentHierarchySchema() *jsonschema.Schema {
	section := func(children *jsonschema.Schema) *jsonschema.Schema {
		s := &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"title":   {Type: "string"},
				"details": {Type: "array", Items: &jsonschema.Schema{Type: "string"}},
			},
			Required: []string{"title", "details"},
		}
		if children != nil {
			s.Properties["children"] = &jsonschema.Schema{Type: "array", Items: children}
			s.Required = append(s.Required, "children")
		}
		return s
	}
	// Gemini schemas cannot reference themselves, so nesting is unrolled to three levels.
	return section(section(section(nil)))
}
