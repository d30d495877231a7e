package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE workflows (
				id BIGSERIAL PRIMARY KEY,
				name VARCHAR(100) NOT NULL,
				enabled BOOLEAN NOT NULL DEFAULT TRUE,
				trigger_blob TEXT NOT NULL DEFAULT '',
				action_blob TEXT NOT NULL DEFAULT ''
			);

			CREATE INDEX idx_workflows_enabled ON workflows(enabled);
		`,
	}
}
