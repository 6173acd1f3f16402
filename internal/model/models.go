package model

// All lists every table owned by this service, in migration order.
func All() []interface{} {
	return []interface{}{
		&Project{},
		&ChatMessage{},
		&Card{},
		&ContentSnapshot{},
	}
}
