// Package events decodes serverless trigger envelopes for object-storage
// uploads and message-queue deliveries.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrEnvelope is returned for envelopes that cannot be decoded.
var ErrEnvelope = errors.New("invalid trigger envelope")

// Upload identifies a newly stored source image.
type Upload struct {
	Bucket    string `json:"bucket_id"`
	ObjectKey string `json:"object_id"`
}

type envelope struct {
	Messages []struct {
		Details json.RawMessage `json:"details"`
	} `json:"messages"`
}

type queueDetails struct {
	Message struct {
		Body string `json:"body"`
	} `json:"message"`
}

func decode(data []byte) (*envelope, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEnvelope, err)
	}
	if len(env.Messages) == 0 {
		return nil, fmt.Errorf("%w: no messages", ErrEnvelope)
	}
	return &env, nil
}

// ParseUploads returns every upload carried by an object-storage trigger.
func ParseUploads(data []byte) ([]Upload, error) {
	env, err := decode(data)
	if err != nil {
		return nil, err
	}

	uploads := make([]Upload, 0, len(env.Messages))
	for i, m := range env.Messages {
		var u Upload
		if err := json.Unmarshal(m.Details, &u); err != nil {
			return nil, fmt.Errorf("%w: message %d: %w", ErrEnvelope, i, err)
		}
		if u.ObjectKey == "" {
			return nil, fmt.Errorf("%w: message %d: missing object_id", ErrEnvelope, i)
		}
		uploads = append(uploads, u)
	}
	return uploads, nil
}

// ParseUpload decodes a single upload notification as delivered over pubsub,
// either bare ({"bucket_id","object_id"}) or wrapped in a trigger envelope.
func ParseUpload(data []byte) ([]Upload, error) {
	var u Upload
	if err := json.Unmarshal(data, &u); err == nil && u.ObjectKey != "" {
		return []Upload{u}, nil
	}
	return ParseUploads(data)
}

// ParseQueueBodies returns the raw message bodies of a message-queue trigger.
func ParseQueueBodies(data []byte) ([][]byte, error) {
	env, err := decode(data)
	if err != nil {
		return nil, err
	}

	bodies := make([][]byte, 0, len(env.Messages))
	for i, m := range env.Messages {
		var d queueDetails
		if err := json.Unmarshal(m.Details, &d); err != nil {
			return nil, fmt.Errorf("%w: message %d: %w", ErrEnvelope, i, err)
		}
		if d.Message.Body == "" {
			return nil, fmt.Errorf("%w: message %d: empty body", ErrEnvelope, i)
		}
		bodies = append(bodies, []byte(d.Message.Body))
	}
	return bodies, nil
}
