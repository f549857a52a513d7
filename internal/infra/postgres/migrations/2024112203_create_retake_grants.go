package migrations

import _ "embed"

//go:embed 0003_create_retake_grants.sql
var createRetakeGrantsSQL string

func init() {
	Migrations.MustRegister(execSQL(createRetakeGrantsSQL), dropTables(`retake_grants`))
}
