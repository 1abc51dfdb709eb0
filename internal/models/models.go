package models

// Tables lists the relational entities for schema migration
func Tables() []any {
	return []any{
		&User{},
		&Notification{},
		&RecipientDelivery{},
		&DeviceToken{},
	}
}
