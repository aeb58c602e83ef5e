package repository

const (
	createRunQuery = `INSERT INTO studio_runs (run_id, user_id, workflow, status, current_stage, progress, message, request)
					VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING *`
	getRunByIDQuery = `SELECT run_id, user_id, workflow, status, current_stage, progress, message, request, results, artifacts,
					error_message, created_at, updated_at, completed_at FROM studio_runs WHERE run_id = $1`
	getRunsByUserIDQuery = `SELECT run_id, user_id, workflow, status, current_stage, progress, message, request, results, artifacts,
					error_message, created_at, updated_at, completed_at FROM studio_runs
					WHERE user_id = $1 ORDER BY created_at DESC OFFSET $2 LIMIT $3`
	getTotalRunsByUserIDQuery = `SELECT COUNT(run_id) FROM studio_runs WHERE user_id = $1`
	updateRunQuery            = `UPDATE studio_runs
					SET status = $2,
					    current_stage = $3,
					    progress = $4,
					    message = $5,
					    results = $6,
					    artifacts = $7,
					    error_message = $8,
					    completed_at = $9,
					    updated_at = NOW()
					WHERE run_id = $1`
)
