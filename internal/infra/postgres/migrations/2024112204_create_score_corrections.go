package migrations

import _ "embed"

//go:embed 0004_create_score_corrections.sql
var createScoreCorrectionsSQL string

func init() {
	Migrations.MustRegister(execSQL(createScoreCorrectionsSQL), dropTables(`score_modifications`, `question_corrections`))
}
