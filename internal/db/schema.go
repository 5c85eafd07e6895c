package db

import "fmt"

// chunkTable holds one row per embedded transcript chunk.
const chunkTable = "transcript_chunk"

// schemaSQL returns the idempotent schema for a vector index of dim
// dimensions. The HNSW index dimension is fixed at definition time, so a
// changed embedding model needs a fresh database.
func schemaSQL(dim int) string {
	return fmt.Sprintf(`
    DEFINE TABLE IF NOT EXISTS transcript_chunk SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS video_id ON transcript_chunk TYPE string;
    DEFINE FIELD IF NOT EXISTS content ON transcript_chunk TYPE string;
    DEFINE FIELD IF NOT EXISTS ordinal ON transcript_chunk TYPE int;
    DEFINE FIELD IF NOT EXISTS embedding ON transcript_chunk TYPE array<float>;
    DEFINE FIELD IF NOT EXISTS created ON transcript_chunk TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS transcript_chunk_video ON transcript_chunk FIELDS video_id;
    DEFINE INDEX IF NOT EXISTS transcript_chunk_embedding ON transcript_chunk FIELDS embedding HNSW DIMENSION %d DIST COSINE TYPE F32;
`, dim)
}
