package postgres

// Schema creates service tables, gue_jobs is created by gue migrations
const Schema = `
CREATE TABLE IF NOT EXISTS transcriptions (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	status TEXT NOT NULL,
	error TEXT,
	video_file TEXT NOT NULL,
	created TIMESTAMPTZ NOT NULL,
	updated TIMESTAMPTZ NOT NULL,
	attempt_until TIMESTAMPTZ
);
ALTER TABLE transcriptions ADD COLUMN IF NOT EXISTS attempt_until TIMESTAMPTZ;
CREATE INDEX IF NOT EXISTS transcriptions_user_created ON transcriptions(user_id, created DESC);

CREATE TABLE IF NOT EXISTS transcription_results (
	id TEXT PRIMARY KEY,
	transcription_id TEXT NOT NULL REFERENCES transcriptions(id) ON DELETE CASCADE,
	output_language TEXT NOT NULL,
	used_model TEXT NOT NULL,
	generated_text TEXT NOT NULL,
	segments JSONB NOT NULL,
	evaluation JSONB,
	video_file TEXT,
	stitch_error TEXT,
	created TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS transcription_results_job ON transcription_results(transcription_id);
`
