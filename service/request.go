package service

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/xraph/vectorflow"
	"github.com/xraph/vectorflow/job"
	"github.com/xraph/vectorflow/source"
)

// Payload is the kind-specific part of a CreateRequest. The set of
// implementations is closed.
type Payload interface {
	Kind() job.Kind
	isPayload()
}

// CreateVector embeds Text and stores it as one vector.
type CreateVector struct {
	// VectorID names the stored vector. Defaults to the job ID.
	VectorID  string         `json:"vectorId,omitempty"`
	Text      string         `json:"text"`
	Model     string         `json:"model,omitempty"`
	Namespace string         `json:"namespace,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// DeleteVectors removes vectors by ID.
type DeleteVectors struct {
	IDs       []string `json:"ids"`
	Namespace string   `json:"namespace,omitempty"`
}

// Bulk fans out one child job per entry of either Vectors (creation
// children) or Items (sync children).
type Bulk struct {
	Vectors   []CreateVector `json:"vectors,omitempty"`
	Items     []source.Item  `json:"items,omitempty"`
	MaxItems  int            `json:"maxItems,omitempty"`
	Namespace string         `json:"namespace,omitempty"`
	Model     string         `json:"model,omitempty"`
}

// ProcessFile chunks a document and stores one vector per chunk.
type ProcessFile struct {
	FileName        string `json:"fileName"`
	Text            string `json:"text"`
	ChunkSize       int    `json:"chunkSize,omitempty"`
	Overlap         int    `json:"overlap,omitempty"`
	ReplaceExisting bool   `json:"replaceExisting,omitempty"`
	Namespace       string `json:"namespace,omitempty"`
	Model           string `json:"model,omitempty"`
}

// Sync ingests the content source from the stored cursor, or from the
// beginning when Full is set.
type Sync struct {
	Namespace string `json:"namespace,omitempty"`
	Model     string `json:"model,omitempty"`
	Full      bool   `json:"full,omitempty"`
}

func (CreateVector) Kind() job.Kind  { return job.KindCreation }
func (DeleteVectors) Kind() job.Kind { return job.KindDeletion }
func (Bulk) Kind() job.Kind          { return job.KindBulk }
func (ProcessFile) Kind() job.Kind   { return job.KindFileProcessing }
func (Sync) Kind() job.Kind          { return job.KindSync }

func (CreateVector) isPayload()  {}
func (DeleteVectors) isPayload() {}
func (Bulk) isPayload()          {}
func (ProcessFile) isPayload()   {}
func (Sync) isPayload()          {}

// CreateRequest is a job submission, a union keyed by Kind. Payload
// must match Kind; an empty Kind is taken from Payload.
type CreateRequest struct {
	Kind    job.Kind
	JobID   string
	Payload Payload
}

// CreateResponse is returned once a job is registered and dispatched.
type CreateResponse struct {
	JobID string `json:"jobId"`
	// ExternalHandleID is the workflow run executing the job. Bulk jobs
	// have no run of their own.
	ExternalHandleID string       `json:"externalHandleId,omitempty"`
	Status           job.Status   `json:"status"`
	Bulk             *BulkCreated `json:"bulk,omitempty"`
}

// QueryRequest searches the index by text or by a raw vector.
type QueryRequest struct {
	Text      string         `json:"text,omitempty"`
	Vector    []float32      `json:"vector,omitempty"`
	Model     string         `json:"model,omitempty"`
	TopK      int            `json:"topK,omitempty"`
	Namespace string         `json:"namespace,omitempty"`
	Filter    map[string]any `json:"filter,omitempty"`
}

//go:embed schemas/*.json
var schemaFS embed.FS

var jobIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:-]{0,127}$`)

// schemas compiles every embedded schema once, keyed by file stem.
var schemas = sync.OnceValues(func() (map[string]*jsonschema.Schema, error) {
	entries, err := schemaFS.ReadDir("schemas")
	if err != nil {
		return nil, err
	}
	compiler := jsonschema.NewCompiler()
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		data, readErr := schemaFS.ReadFile("schemas/" + e.Name())
		if readErr != nil {
			return nil, readErr
		}
		if addErr := compiler.AddResource(e.Name(), bytes.NewReader(data)); addErr != nil {
			return nil, fmt.Errorf("add schema %s: %w", e.Name(), addErr)
		}
		names = append(names, e.Name())
	}
	out := make(map[string]*jsonschema.Schema, len(names))
	for _, name := range names {
		s, compileErr := compiler.Compile(name)
		if compileErr != nil {
			return nil, fmt.Errorf("compile schema %s: %w", name, compileErr)
		}
		out[strings.TrimSuffix(name, ".json")] = s
	}
	return out, nil
})

// ParseCreateRequest decodes a flat JSON submission: "kind" selects the
// payload, "jobId" optionally names the job, and the remaining fields
// are validated against the kind's schema.
func ParseCreateRequest(data []byte) (CreateRequest, error) {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return CreateRequest{}, &vectorflow.ValidationError{Message: "body is not a JSON object: " + err.Error()}
	}
	kind, _ := fields["kind"].(string)
	jobID, _ := fields["jobId"].(string)
	delete(fields, "kind")
	delete(fields, "jobId")

	req := CreateRequest{Kind: job.Kind(kind), JobID: jobID}
	var p Payload
	switch req.Kind {
	case job.KindCreation:
		p = decodePayload[CreateVector](data)
	case job.KindDeletion:
		p = decodePayload[DeleteVectors](data)
	case job.KindBulk:
		p = decodePayload[Bulk](data)
	case job.KindFileProcessing:
		p = decodePayload[ProcessFile](data)
	case job.KindSync:
		p = decodePayload[Sync](data)
	default:
		return req, &vectorflow.ValidationError{Field: "kind", Message: fmt.Sprintf("unknown job kind %q", kind)}
	}
	if err := validateFields(string(req.Kind), fields); err != nil {
		return req, err
	}
	if p == nil {
		return req, &vectorflow.ValidationError{Message: "body does not match the " + kind + " payload"}
	}
	req.Payload = p
	return req, nil
}

func decodePayload[T Payload](data []byte) Payload {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil
	}
	return v
}

// Validate checks the envelope and validates the payload against its
// schema.
func (r CreateRequest) Validate() error {
	if r.Payload == nil {
		return &vectorflow.ValidationError{Field: "kind", Message: "payload is required"}
	}
	if r.Kind != "" && r.Kind != r.Payload.Kind() {
		return &vectorflow.ValidationError{
			Field:   "kind",
			Message: fmt.Sprintf("kind %q does not match %s payload", r.Kind, r.Payload.Kind()),
		}
	}
	if r.JobID != "" && !jobIDPattern.MatchString(r.JobID) {
		return &vectorflow.ValidationError{Field: "jobId", Message: "must be 1-128 characters of letters, digits, and _ . : -"}
	}
	if err := validateValue(string(r.Payload.Kind()), r.Payload); err != nil {
		return err
	}
	if pf, ok := r.Payload.(ProcessFile); ok && pf.ChunkSize > 0 && pf.Overlap >= pf.ChunkSize {
		return &vectorflow.ValidationError{Field: "overlap", Message: "must be smaller than chunkSize"}
	}
	return nil
}

// Validate checks the query against its schema.
func (q QueryRequest) Validate() error {
	return validateValue("query", q)
}

// validateValue round-trips v through JSON and validates it.
func validateValue(schema string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return &vectorflow.ValidationError{Message: err.Error()}
	}
	var fields any
	if err := json.Unmarshal(data, &fields); err != nil {
		return &vectorflow.ValidationError{Message: err.Error()}
	}
	return validateFields(schema, fields)
}

func validateFields(schema string, fields any) error {
	all, err := schemas()
	if err != nil {
		return fmt.Errorf("load request schemas: %w", err)
	}
	s, ok := all[schema]
	if !ok {
		return fmt.Errorf("no schema for %q", schema)
	}
	if err := s.Validate(fields); err != nil {
		return schemaError(err)
	}
	return nil
}

// schemaError reduces a schema failure to its most specific cause.
func schemaError(err error) error {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return &vectorflow.ValidationError{Message: err.Error()}
	}
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	field := strings.ReplaceAll(strings.TrimPrefix(ve.InstanceLocation, "/"), "/", ".")
	return &vectorflow.ValidationError{Field: field, Message: ve.Message}
}
