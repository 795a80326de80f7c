package queue

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"testing"
)

func TestLegacyFileUnmarshalBase64(t *testing.T) {
	payload := []byte("hello intake")
	raw := []byte(`{"name":"doc.jpg","mimeType":"image/jpeg","data":"` +
		base64.StdEncoding.EncodeToString(payload) + `"}`)

	var f LegacyFile
	if err := json.Unmarshal(raw, &f); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if f.Name != "doc.jpg" || f.MimeType != "image/jpeg" {
		t.Errorf("metadata = %q / %q", f.Name, f.MimeType)
	}
	if !bytes.Equal(f.Data, payload) {
		t.Errorf("data = %q, want %q", f.Data, payload)
	}
}

func TestLegacyFileUnmarshalBufferObject(t *testing.T) {
	raw := []byte(`{"name":"doc.jpg","data":{"type":"Buffer","data":[104,105]}}`)

	var f LegacyFile
	if err := json.Unmarshal(raw, &f); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if !bytes.Equal(f.Data, []byte("hi")) {
		t.Errorf("data = %v, want [104 105]", f.Data)
	}
}

func TestLegacyFileUnmarshalMissingData(t *testing.T) {
	var f LegacyFile
	if err := json.Unmarshal([]byte(`{"name":"doc.jpg"}`), &f); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if f.Data != nil {
		t.Errorf("data = %v, want nil", f.Data)
	}
}

func TestLegacyFileUnmarshalRejectsBadFormats(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"invalid base64", `{"name":"a","data":"!!!not-base64!!!"}`},
		{"wrong buffer type", `{"name":"a","data":{"type":"NotBuffer","data":[1]}}`},
		{"buffer without data", `{"name":"a","data":{"type":"Buffer"}}`},
		{"numeric data", `{"name":"a","data":42}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f LegacyFile
			if err := json.Unmarshal([]byte(tt.raw), &f); err == nil {
				t.Error("expected unmarshal error, got nil")
			}
		})
	}
}

func TestLegacyPayloadUnmarshal(t *testing.T) {
	raw := []byte(`{
		"id": "q-1",
		"type": "intake:batch",
		"payload": {
			"jobId": "4f9c6f44-0000-0000-0000-000000000000",
			"clientId": 7,
			"docFormatId": 12,
			"preset": "scanner",
			"files": [
				{"name": "a.jpg", "data": "` + base64.StdEncoding.EncodeToString([]byte("A")) + `"},
				{"name": "b.jpg", "data": {"type": "Buffer", "data": [66]}}
			]
		},
		"attempts": 0,
		"maxRetries": 3
	}`)

	var job RedisJobData
	if err := json.Unmarshal(raw, &job); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if job.Payload.ClientID != 7 || job.Payload.DocFormatID != 12 {
		t.Errorf("IDs = %d / %d", job.Payload.ClientID, job.Payload.DocFormatID)
	}
	if job.Payload.Preset != "scanner" {
		t.Errorf("preset = %q", job.Payload.Preset)
	}
	if len(job.Payload.Files) != 2 {
		t.Fatalf("files = %d, want 2", len(job.Payload.Files))
	}
	if string(job.Payload.Files[0].Data) != "A" || string(job.Payload.Files[1].Data) != "B" {
		t.Errorf("file data = %q / %q", job.Payload.Files[0].Data, job.Payload.Files[1].Data)
	}
}

func TestBatchRequestConversion(t *testing.T) {
	job := &BatchJob{
		JobID:       "job-1",
		ClientID:    3,
		DocFormatID: 9,
		Preset:      "capture",
		Files: []JobFile{
			{Name: "one.jpg", MimeType: "image/jpeg", Data: []byte{1}},
			{Name: "two.png", Data: []byte{2}},
		},
	}

	req := batchRequest(job)

	if req.JobID != "job-1" || req.ClientID != 3 || req.DocFormatID != 9 {
		t.Errorf("request header = %+v", req)
	}
	if len(req.Assets) != 2 {
		t.Fatalf("assets = %d, want 2", len(req.Assets))
	}
	if req.Assets[0].Name != "one.jpg" || req.Assets[0].MimeType != "image/jpeg" {
		t.Errorf("first asset = %+v", req.Assets[0])
	}
}
