package webhook_test

import (
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/commhub/pkg/webhook"
)

func TestVerify(t *testing.T) {
	t.Parallel()
	now := time.Unix(1_700_000_000, 0)
	payload := []byte(`{"job_id":"1"}`)

	signed := func(ts time.Time, secret string) http.Header {
		h := http.Header{}
		h.Set(webhook.HeaderTimestamp, strconv.FormatInt(ts.Unix(), 10))
		h.Set(webhook.HeaderSignature, webhook.Sign(secret, ts.Unix(), payload))
		return h
	}

	tests := []struct {
		name    string
		secret  string
		header  http.Header
		body    []byte
		wantErr error
	}{
		{"valid", "s3cret", signed(now, "s3cret"), payload, nil},
		{"wrong secret", "s3cret", signed(now, "other"), payload, webhook.ErrInvalidSignature},
		{"tampered body", "s3cret", signed(now, "s3cret"), []byte(`{"job_id":"2"}`), webhook.ErrInvalidSignature},
		{"expired", "s3cret", signed(now.Add(-10*time.Minute), "s3cret"), payload, webhook.ErrInvalidSignature},
		{"future", "s3cret", signed(now.Add(5*time.Minute), "s3cret"), payload, webhook.ErrInvalidSignature},
		{"missing headers", "s3cret", http.Header{}, payload, webhook.ErrInvalidSignature},
		{"no secret", "", signed(now, "s3cret"), payload, webhook.ErrInvalidConfiguration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := webhook.Verify(tt.secret, tt.header, tt.body, 5*time.Minute, now)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
