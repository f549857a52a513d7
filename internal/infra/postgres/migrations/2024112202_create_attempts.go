package migrations

import _ "embed"

//go:embed 0002_create_attempts.sql
var createAttemptsSQL string

func init() {
	Migrations.MustRegister(execSQL(createAttemptsSQL), dropTables(`quiz_attempts`))
}
