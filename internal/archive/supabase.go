package archive

import (
	"bytes"
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/supabase-community/supabase-go"
)

// Archive keeps raw answer recordings in a Supabase storage bucket so a
// reviewer can listen to the original audio behind a transcript. Uploads are
// best effort; the interview never waits on or fails over them.
type Archive struct {
	client *supabase.Client
	bucket string
}

func New(url, serviceRoleKey, bucket string) (*Archive, error) {
	client, err := supabase.NewClient(url, serviceRoleKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}
	return &Archive{client: client, bucket: bucket}, nil
}

// ArchiveAnswer stores one answer's WAV under a stable per-question key, so
// a retried upload overwrites nothing new.
func (a *Archive) ArchiveAnswer(_ context.Context, sessionID, questionID uuid.UUID, wav []byte) error {
	key := fmt.Sprintf("answers/%s/%s.wav", sessionID, questionID)
	if _, err := a.client.Storage.UploadFile(a.bucket, key, bytes.NewReader(wav)); err != nil {
		return fmt.Errorf("upload answer audio: %w", err)
	}
	return nil
}
