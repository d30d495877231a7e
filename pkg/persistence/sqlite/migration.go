package sqlite

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE workflows (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				name TEXT NOT NULL,
				enabled BOOLEAN NOT NULL DEFAULT 1,
				trigger_blob TEXT NOT NULL DEFAULT '',
				action_blob TEXT NOT NULL DEFAULT ''
			);

			CREATE INDEX idx_workflows_enabled ON workflows(enabled);
		`,
	}
}
