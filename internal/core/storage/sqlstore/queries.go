package sqlstore

const (
	querySelectLastSend = `
		SELECT last_send
		FROM schedule_records
		WHERE entity_kind = $1 AND entity_name = $2
	`

	queryUpsertLastSend = `
		INSERT INTO schedule_records (entity_kind, entity_name, last_send, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (entity_kind, entity_name)
		DO UPDATE SET
			last_send  = EXCLUDED.last_send,
			updated_at = EXCLUDED.updated_at
	`

	queryValidateSchema = `SELECT 1 FROM schedule_records LIMIT 1`
)
